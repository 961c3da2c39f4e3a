// Package economy implements the chat room's virtual economy: the command
// dispatcher, the interest/market scheduler, and per-user farming loops.
package economy

import "context"

// MsgType tags an outbound message for client rendering.
type MsgType string

const (
	MsgChat   MsgType = "chat"
	MsgSystem MsgType = "system"
	MsgNews   MsgType = "news"
	MsgBot    MsgType = "bot"
	MsgFarm   MsgType = "farm"
	MsgFile   MsgType = "file"
)

// Message is the outbound event shape shared by the hub, the dispatcher, and
// the background loops.
type Message struct {
	Nickname string  `json:"nickname,omitempty"`
	Msg      string  `json:"msg"`
	Type     MsgType `json:"type"`
	Rank     string  `json:"rank,omitempty"`
	Reward   string  `json:"reward,omitempty"`
}

// Scope says who receives an outbound message.
type Scope int

const (
	ScopeSender Scope = iota
	ScopeRoom
)

// Outbound pairs a message with its delivery scope.
type Outbound struct {
	Scope   Scope
	Message Message
}

func toSender(msg Message) []Outbound {
	return []Outbound{{Scope: ScopeSender, Message: msg}}
}

func toRoom(msg Message) []Outbound {
	return []Outbound{{Scope: ScopeRoom, Message: msg}}
}

// Broadcaster delivers a message to every connected client. The hub
// implements it; background loops hold nothing else of the transport.
type Broadcaster interface {
	Broadcast(msg Message)
}

// Completer is the opaque text-completion collaborator behind the bot
// command. Failures are swallowed; they never touch ledger state.
type Completer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Archiver offloads oversized chat messages to storage and returns a public
// link.
type Archiver interface {
	SaveText(nickname, content string) (string, error)
}

// comma renders 1234567 as "1,234,567" for chat display.
func comma(n int64) string {
	if n < 0 {
		return "-" + comma(-n)
	}
	s := make([]byte, 0, 24)
	digits := 0
	for {
		s = append(s, byte('0'+n%10))
		n /= 10
		digits++
		if n == 0 {
			break
		}
		if digits%3 == 0 {
			s = append(s, ',')
		}
	}
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return string(s)
}
