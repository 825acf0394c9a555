// Package gate decides whether an inbound message should be answered.
package gate

import (
	"strings"
	"unicode/utf16"
)

const (
	ChatTypePrivate    = "private"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"

	entityMention = "mention"
)

// Entity mirrors a Telegram message entity. Offset and Length are in
// UTF-16 code units, as delivered by the Bot API.
type Entity struct {
	Type   string `json:"type"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

// Message is the slice of an inbound message the gate needs.
type Message struct {
	ChatType      string
	Text          string
	Entities      []Entity
	ReplyToUserID int64
}

// Identity is the bot's own addressable identity.
type Identity struct {
	Username string
	UserID   int64
}

// ShouldRespond reports whether the bot should answer. Private chats are
// always answered. Groups and supergroups are answered only when the
// message carries an exact @username mention or replies to one of the
// bot's own messages. Everything else is ignored.
func ShouldRespond(msg Message, id Identity) bool {
	if strings.TrimSpace(msg.Text) == "" {
		return false
	}
	switch msg.ChatType {
	case ChatTypePrivate:
		return true
	case ChatTypeGroup, ChatTypeSupergroup:
		want := "@" + id.Username
		for _, e := range msg.Entities {
			if e.Type != entityMention {
				continue
			}
			if entityText(msg.Text, e.Offset, e.Length) == want {
				return true
			}
		}
		return msg.ReplyToUserID != 0 && msg.ReplyToUserID == id.UserID
	default:
		return false
	}
}

// StripMention removes the bot's @username from group messages so the
// generation backend never sees the addressing mention.
func StripMention(text, username string) string {
	if username == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "@"+username, ""))
}

func entityText(text string, offset, length int64) string {
	u := utf16.Encode([]rune(text))
	if offset < 0 || length <= 0 || offset+length > int64(len(u)) {
		return ""
	}
	return string(utf16.Decode(u[offset : offset+length]))
}
