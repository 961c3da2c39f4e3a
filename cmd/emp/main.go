package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"empirechat/internal/economy"
	"empirechat/internal/ledger"
)

func main() {
	server := envDefault("EMP_SERVER", "http://localhost:5001")

	root := &cobra.Command{
		Use:          "emp",
		Short:        "Empirechat terminal client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&server, "server", server, "server base URL")

	root.AddCommand(
		newChatCmd(&server),
		newRankingCmd(&server),
		newMarketCmd(&server),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newChatCmd(server *string) *cobra.Command {
	var nick string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the room and chat (type !help for commands)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(nick) == "" {
				return fmt.Errorf("--nick is required")
			}
			return runChat(cmd.Context(), *server, nick)
		},
	}
	cmd.Flags().StringVar(&nick, "nick", "", "your nickname")
	return cmd
}

func runChat(ctx context.Context, server, nick string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsURL, err := roomURL(server, nick)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	defer conn.Close()
	printInfo(fmt.Sprintf("connected to %s as %s", server, nick))

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	go func() {
		for {
			var msg economy.Message
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					printWarn("connection lost")
				}
				stop()
				return
			}
			printMessage(msg)
		}
	}()

	// Stdin reads block past a Ctrl+C, so they get their own goroutine and
	// the loop below watches ctx.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := conn.WriteJSON(map[string]string{"msg": line}); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}

func newRankingCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ranking",
		Short: "Show the wealth ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Rows []ledger.Entry `json:"rows"`
			}
			if err := getJSON(cmd.Context(), *server+"/v1/ranking", &out); err != nil {
				return err
			}
			printInfo("imperial wealth ranking")
			for i, row := range out.Rows {
				fmt.Printf("%2d. %-20s %s₩\n", i+1, row.Nickname, formatInt(row.Total))
			}
			return nil
		},
	}
}

func newMarketCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Show current asset prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Prices map[string]int64 `json:"prices"`
			}
			if err := getJSON(cmd.Context(), *server+"/v1/market", &out); err != nil {
				return err
			}
			for sym, price := range out.Prices {
				fmt.Printf("%-8s %s₩\n", sym, formatInt(price))
			}
			return nil
		},
	}
}

func roomURL(server, nick string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"nick": {nick}}.Encode()
	return u.String(), nil
}

func getJSON(ctx context.Context, rawURL string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", rawURL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
