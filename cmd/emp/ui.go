package main

import (
	"fmt"

	"github.com/fatih/color"

	"empirechat/internal/economy"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warning = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
	dim     = color.New(color.FgHiBlack)
)

func printInfo(s string) { accent.Println(s) }
func printWarn(s string) { danger.Println(s) }

func printMessage(msg economy.Message) {
	switch msg.Type {
	case economy.MsgNews:
		warning.Println(msg.Msg)
	case economy.MsgSystem:
		accent.Println(msg.Msg)
	case economy.MsgBot:
		success.Printf("%s %s\n", msg.Nickname, msg.Msg)
	case economy.MsgFarm:
		dim.Printf("%s %s\n", msg.Nickname, msg.Msg)
	case economy.MsgFile:
		accent.Println(msg.Msg)
	default:
		tag := ""
		if msg.Rank != "" {
			tag = dim.Sprintf("[%s] ", msg.Rank)
		}
		reward := ""
		if msg.Reward != "" {
			reward = success.Sprintf(" (%s)", msg.Reward)
		}
		fmt.Printf("%s%s: %s%s\n", tag, neutral.Sprint(msg.Nickname), msg.Msg, reward)
	}
}

// formatInt renders 1234567 as "1,234,567".
func formatInt(n int64) string {
	if n < 0 {
		return "-" + formatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	out := make([]byte, 0, len(s)+len(s)/3)
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
