package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"empirechat/internal/ledger"
	"empirechat/internal/market"
	"empirechat/internal/metrics"
)

const botTimeout = 30 * time.Second

// Rules are the dispatcher's economic knobs.
type Rules struct {
	RewardBase    int64
	RewardPerChar int64
	LargeMsgChars int
	TopN          int
}

// Deps are the dispatcher's collaborators. Bot, Archive, and Metrics may be
// nil; the matching features degrade instead of failing.
type Deps struct {
	Store   ledger.Store
	Market  *market.Market
	Farm    *Registry
	Ranks   RankTable
	Out     Broadcaster
	Bot     Completer
	Archive Archiver
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Dispatcher turns one inbound chat line into ledger/registry mutations and
// outbound messages. It keeps no per-call state; precondition checks are
// advisory and the atomic Adjust is the real safety net for balances.
type Dispatcher struct {
	store   ledger.Store
	market  *market.Market
	farm    *Registry
	ranks   RankTable
	out     Broadcaster
	bot     Completer
	archive Archiver
	metrics *metrics.Collector
	log     *slog.Logger
	rules   Rules

	mu   sync.Mutex
	rand *rand.Rand
}

func NewDispatcher(deps Deps, rules Rules) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:   deps.Store,
		market:  deps.Market,
		farm:    deps.Farm,
		ranks:   deps.Ranks,
		out:     deps.Out,
		bot:     deps.Bot,
		archive: deps.Archive,
		metrics: deps.Metrics,
		log:     logger,
		rules:   rules,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Handle processes one chat line from nickname. It never panics on user
// input: malformed commands return a usage hint, failed preconditions a
// rejection, and anything that matches no command is an ordinary (rewarded)
// chat message.
func (d *Dispatcher) Handle(ctx context.Context, nickname, text string) []Outbound {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	acct, err := d.store.GetOrCreate(ctx, nickname)
	if err != nil {
		d.log.Error("account load failed", "nickname", nickname, "err", err)
		return toSender(Message{Msg: "⚠️ the ledger is unavailable, try again", Type: MsgSystem})
	}

	if !strings.HasPrefix(text, "!") {
		return d.handleChat(ctx, acct, text)
	}

	parts := strings.Fields(text)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "!balance":
		return d.handleBalance(acct)
	case "!deposit":
		return d.handleDeposit(ctx, acct, args)
	case "!withdraw":
		return d.handleWithdraw(ctx, acct, args)
	case "!gift":
		return d.handleGift(ctx, acct, args)
	case "!gamble":
		return d.handleGamble(ctx, acct, args)
	case "!rps":
		return d.handleRPS(ctx, acct, args)
	case "!buy":
		return d.handleBuy(ctx, acct, args)
	case "!ranking":
		return d.handleRanking(ctx)
	case "!farm":
		return d.handleFarmStart(acct)
	case "!farmstop":
		return d.handleFarmStop(acct)
	case "!ask":
		return d.handleAsk(acct, args)
	case "!help":
		return d.handleHelp()
	default:
		// Unrecognized "!" words are just chat, same as any other text.
		return d.handleChat(ctx, acct, text)
	}
}

func (d *Dispatcher) handleChat(ctx context.Context, acct ledger.Account, text string) []Outbound {
	chars := utf8.RuneCountInString(text)
	reward := d.rules.RewardBase + int64(chars)*d.rules.RewardPerChar
	if _, err := d.store.Adjust(ctx, acct.Nickname, ledger.FieldCash, reward); err != nil {
		d.log.Error("chat reward failed", "nickname", acct.Nickname, "err", err)
		reward = 0
	}
	d.metrics.CommandHandled("chat", true)

	display := text
	if d.archive != nil && d.rules.LargeMsgChars > 0 && chars > d.rules.LargeMsgChars {
		link, err := d.archive.SaveText(acct.Nickname, text)
		if err != nil {
			d.log.Error("large message archive failed", "nickname", acct.Nickname, "err", err)
		} else {
			display = fmt.Sprintf("📄 [large message] %d chars | 🔗 %s", chars, link)
		}
	}

	total := acct.Wealth() + d.market.Value(acct.Holdings)
	rank := d.ranks.Rank(total)

	if err := d.store.AppendChat(ctx, ledger.ChatRecord{
		Nickname: acct.Nickname,
		Msg:      display,
		Type:     string(MsgChat),
		Rank:     rank,
	}); err != nil {
		d.log.Error("chat history append failed", "err", err)
	}

	msg := Message{
		Nickname: acct.Nickname,
		Msg:      display,
		Type:     MsgChat,
		Rank:     rank,
	}
	if reward > 0 {
		msg.Reward = fmt.Sprintf("+%s₩", comma(reward))
	}
	return toRoom(msg)
}

func (d *Dispatcher) handleBalance(acct ledger.Account) []Outbound {
	holdingsValue := d.market.Value(acct.Holdings)
	total := acct.Wealth() + holdingsValue
	d.metrics.CommandHandled("balance", true)
	return toSender(Message{
		Msg: fmt.Sprintf("💰 wealth report for %s\n💵 cash: %s₩\n🏦 bank: %s₩\n🪙 holdings: %s₩\n💳 total: %s₩ (%s)",
			acct.Nickname, comma(acct.Cash), comma(acct.Bank), comma(holdingsValue), comma(total), d.ranks.Rank(total)),
		Type: MsgSystem,
	})
}

func (d *Dispatcher) handleDeposit(ctx context.Context, acct ledger.Account, args []string) []Outbound {
	amount, ok := parseAmount(args, 0)
	if !ok {
		return d.reject("deposit", "usage: !deposit <amount>")
	}
	if acct.Cash < amount {
		return d.reject("deposit", fmt.Sprintf("🚫 not enough cash (you hold %s₩)", comma(acct.Cash)))
	}
	if _, err := d.store.Adjust(ctx, acct.Nickname, ledger.FieldCash, -amount); err != nil {
		return d.rejectErr("deposit", acct.Nickname, err)
	}
	if _, err := d.store.Adjust(ctx, acct.Nickname, ledger.FieldBank, amount); err != nil {
		return d.rejectErr("deposit", acct.Nickname, err)
	}
	d.metrics.CommandHandled("deposit", true)
	return toSender(Message{Msg: fmt.Sprintf("🏦 deposited %s₩", comma(amount)), Type: MsgSystem})
}

func (d *Dispatcher) handleWithdraw(ctx context.Context, acct ledger.Account, args []string) []Outbound {
	amount, ok := parseAmount(args, 0)
	if !ok {
		return d.reject("withdraw", "usage: !withdraw <amount>")
	}
	if acct.Bank < amount {
		return d.reject("withdraw", fmt.Sprintf("🚫 not enough banked (you hold %s₩)", comma(acct.Bank)))
	}
	if _, err := d.store.Adjust(ctx, acct.Nickname, ledger.FieldBank, -amount); err != nil {
		return d.rejectErr("withdraw", acct.Nickname, err)
	}
	if _, err := d.store.Adjust(ctx, acct.Nickname, ledger.FieldCash, amount); err != nil {
		return d.rejectErr("withdraw", acct.Nickname, err)
	}
	d.metrics.CommandHandled("withdraw", true)
	return toSender(Message{Msg: fmt.Sprintf("🏧 withdrew %s₩", comma(amount)), Type: MsgSystem})
}

func (d *Dispatcher) handleGift(ctx context.Context, acct ledger.Account, args []string) []Outbound {
	if len(args) != 2 {
		return d.reject("gift", "usage: !gift <nickname> <amount>")
	}
	target := args[0]
	amount, ok := parseAmount(args, 1)
	if !ok {
		return d.reject("gift", "usage: !gift <nickname> <amount>")
	}
	if acct.Cash < amount {
		return d.reject("gift", fmt.Sprintf("🚫 not enough cash (you hold %s₩)", comma(acct.Cash)))
	}
	if _, err := d.store.GetOrCreate(ctx, target); err != nil {
		return d.rejectErr("gift", acct.Nickname, err)
	}
	// Debit first so the transfer can never mint money; the credit below
	// cannot fail the non-negative check.
	if _, err := d.store.Adjust(ctx, acct.Nickname, ledger.FieldCash, -amount); err != nil {
		return d.rejectErr("gift", acct.Nickname, err)
	}
	if _, err := d.store.Adjust(ctx, target, ledger.FieldCash, amount); err != nil {
		d.log.Error("gift credit failed after debit", "from", acct.Nickname, "to", target, "amount", amount, "err", err)
		return d.rejectErr("gift", acct.Nickname, err)
	}
	d.metrics.CommandHandled("gift", true)
	return toRoom(Message{
		Msg:  fmt.Sprintf("🎁 %s gifted %s₩ to %s!", acct.Nickname, comma(amount), target),
		Type: MsgSystem,
	})
}

func (d *Dispatcher) handleGamble(ctx context.Context, acct ledger.Account, args []string) []Outbound {
	amount, ok := parseAmount(args, 0)
	if !ok {
		return d.reject("gamble", "usage: !gamble <amount>")
	}
	if acct.Cash < amount {
		return d.reject("gamble", fmt.Sprintf("🚫 not enough cash (you hold %s₩)", comma(acct.Cash)))
	}
	if d.roll(2) == 0 {
		next, err := d.store.Adjust(ctx, acct.Nickname, ledger.FieldCash, amount)
		if err != nil {
			return d.rejectErr("gamble", acct.Nickname, err)
		}
		d.metrics.CommandHandled("gamble", true)
		return toSender(Message{Msg: fmt.Sprintf("🎰 you won %s₩! cash: %s₩", comma(amount), comma(next)), Type: MsgSystem})
	}
	next, err := d.store.Adjust(ctx, acct.Nickname, ledger.FieldCash, -amount)
	if err != nil {
		return d.rejectErr("gamble", acct.Nickname, err)
	}
	d.metrics.CommandHandled("gamble", true)
	return toSender(Message{Msg: fmt.Sprintf("💸 you lost %s₩... cash: %s₩", comma(amount), comma(next)), Type: MsgSystem})
}

var rpsBeats = map[string]string{"rock": "scissors", "paper": "rock", "scissors": "paper"}

func (d *Dispatcher) handleRPS(ctx context.Context, acct ledger.Account, args []string) []Outbound {
	if len(args) != 2 {
		return d.reject("rps", "usage: !rps <rock|paper|scissors> <amount>")
	}
	choice := strings.ToLower(args[0])
	if _, valid := rpsBeats[choice]; !valid {
		return d.reject("rps", "usage: !rps <rock|paper|scissors> <amount>")
	}
	amount, ok := parseAmount(args, 1)
	if !ok {
		return d.reject("rps", "usage: !rps <rock|paper|scissors> <amount>")
	}
	if acct.Cash < amount {
		return d.reject("rps", fmt.Sprintf("🚫 not enough cash (you hold %s₩)", comma(acct.Cash)))
	}

	picks := []string{"rock", "paper", "scissors"}
	server := picks[d.roll(3)]

	var outcome string
	var delta int64
	switch {
	case choice == server:
		outcome = "tie"
	case rpsBeats[choice] == server:
		outcome = "win"
		delta = amount
	default:
		outcome = "loss"
		delta = -amount
	}
	if delta != 0 {
		if _, err := d.store.Adjust(ctx, acct.Nickname, ledger.FieldCash, delta); err != nil {
			return d.rejectErr("rps", acct.Nickname, err)
		}
	}
	d.metrics.CommandHandled("rps", true)
	return toSender(Message{
		Msg:  fmt.Sprintf("🎮 you (%s) vs server (%s) → %s!", choice, server, outcome),
		Type: MsgSystem,
	})
}

func (d *Dispatcher) handleBuy(ctx context.Context, acct ledger.Account, args []string) []Outbound {
	if len(args) != 2 {
		return d.reject("buy", "usage: !buy <asset> <amount>")
	}
	asset := strings.ToUpper(args[0])
	amount, ok := parseAmount(args, 1)
	if !ok {
		return d.reject("buy", "usage: !buy <asset> <amount>")
	}
	price, err := d.market.Price(asset)
	if err != nil {
		return d.reject("buy", fmt.Sprintf("🚫 unknown asset %q (try one of %s)", args[0], strings.Join(d.market.Symbols(), ", ")))
	}
	if acct.Cash < amount {
		return d.reject("buy", fmt.Sprintf("🚫 not enough cash (you hold %s₩)", comma(acct.Cash)))
	}
	qty := float64(amount) / float64(price)
	if _, err := d.store.Adjust(ctx, acct.Nickname, ledger.FieldCash, -amount); err != nil {
		return d.rejectErr("buy", acct.Nickname, err)
	}
	if _, err := d.store.AdjustHolding(ctx, acct.Nickname, asset, qty); err != nil {
		d.log.Error("holding credit failed after debit", "nickname", acct.Nickname, "asset", asset, "err", err)
		return d.rejectErr("buy", acct.Nickname, err)
	}
	d.metrics.CommandHandled("buy", true)
	return toSender(Message{
		Msg:  fmt.Sprintf("📈 bought %.6f %s at %s₩ each", qty, asset, comma(price)),
		Type: MsgSystem,
	})
}

func (d *Dispatcher) handleRanking(ctx context.Context) []Outbound {
	top, err := d.store.TopByWealth(ctx, d.rules.TopN)
	if err != nil {
		d.log.Error("ranking query failed", "err", err)
		return d.reject("ranking", "⚠️ ranking is unavailable right now")
	}
	lines := make([]string, 0, len(top)+1)
	lines = append(lines, "🏆 [imperial wealth ranking]")
	for i, e := range top {
		lines = append(lines, fmt.Sprintf("%d. %s (%s₩)", i+1, e.Nickname, comma(e.Total)))
	}
	d.metrics.CommandHandled("ranking", true)
	return toSender(Message{Msg: strings.Join(lines, "\n"), Type: MsgSystem})
}

func (d *Dispatcher) handleFarmStart(acct ledger.Account) []Outbound {
	if !d.farm.Start(acct.Nickname) {
		return d.reject("farm", "🌀 your farming loop is already running")
	}
	d.metrics.CommandHandled("farm", true)
	return toSender(Message{Msg: "🌀 farming loop started (stop with !farmstop)", Type: MsgSystem})
}

func (d *Dispatcher) handleFarmStop(acct ledger.Account) []Outbound {
	if !d.farm.Stop(acct.Nickname) {
		return d.reject("farmstop", "🌀 no farming loop is running")
	}
	d.metrics.CommandHandled("farmstop", true)
	return toSender(Message{Msg: "🛑 farming loop will stop after its next tick", Type: MsgSystem})
}

// handleAsk fires the completion call on its own goroutine after the command
// returns, so a slow or failing collaborator can never block a chat
// connection or touch ledger state.
func (d *Dispatcher) handleAsk(acct ledger.Account, args []string) []Outbound {
	if d.bot == nil {
		return d.reject("ask", "🤖 the oracle is offline")
	}
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return d.reject("ask", "usage: !ask <question>")
	}
	d.metrics.CommandHandled("ask", true)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), botTimeout)
		defer cancel()
		reply, err := d.bot.Generate(ctx, prompt)
		if err != nil {
			d.log.Error("completion failed", "nickname", acct.Nickname, "err", err)
			d.out.Broadcast(Message{Msg: "🤖 the oracle stays silent...", Type: MsgBot})
			return
		}
		d.out.Broadcast(Message{Msg: "🤖 " + reply, Type: MsgBot})
	}()
	return nil
}

func (d *Dispatcher) handleHelp() []Outbound {
	d.metrics.CommandHandled("help", true)
	return toSender(Message{
		Msg: "!balance, !deposit <amt>, !withdraw <amt>, !gift <nick> <amt>, !gamble <amt>, " +
			"!rps <rock|paper|scissors> <amt>, !buy <asset> <amt>, !ranking, !farm, !farmstop, !ask <question>",
		Type: MsgSystem,
	})
}

func (d *Dispatcher) reject(command, msg string) []Outbound {
	d.metrics.CommandHandled(command, false)
	return toSender(Message{Msg: msg, Type: MsgSystem})
}

// rejectErr turns a store error into a user-visible rejection. A racing
// concurrent command can invalidate an advisory precondition check; Adjust
// reported it, the user just retries.
func (d *Dispatcher) rejectErr(command, nickname string, err error) []Outbound {
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return d.reject(command, "🚫 insufficient funds")
	}
	d.log.Error("command mutation failed", "command", command, "nickname", nickname, "err", err)
	return d.reject(command, "⚠️ the ledger is unavailable, try again")
}

// parseAmount reads args[idx] as a positive integer amount.
func parseAmount(args []string, idx int) (int64, bool) {
	if idx >= len(args) {
		return 0, false
	}
	n, err := strconv.ParseInt(args[idx], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (d *Dispatcher) roll(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rand.Intn(n)
}
