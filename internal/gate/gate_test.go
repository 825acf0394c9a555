package gate

import "testing"

var botID = Identity{Username: "gembot", UserID: 42}

func TestShouldRespondPrivateAlways(t *testing.T) {
	cases := []Message{
		{ChatType: ChatTypePrivate, Text: "hello"},
		{ChatType: ChatTypePrivate, Text: "no mention here at all"},
		{ChatType: ChatTypePrivate, Text: "@someoneelse hi", Entities: []Entity{{Type: "mention", Offset: 0, Length: 12}}},
	}
	for _, msg := range cases {
		if !ShouldRespond(msg, botID) {
			t.Errorf("expected private message %q to pass the gate", msg.Text)
		}
	}
}

func TestShouldRespondGroup(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{
			name: "exact mention",
			msg: Message{
				ChatType: ChatTypeGroup,
				Text:     "@gembot what's up",
				Entities: []Entity{{Type: "mention", Offset: 0, Length: 7}},
			},
			want: true,
		},
		{
			name: "mention of someone else",
			msg: Message{
				ChatType: ChatTypeGroup,
				Text:     "@other what's up",
				Entities: []Entity{{Type: "mention", Offset: 0, Length: 6}},
			},
			want: false,
		},
		{
			name: "mention after emoji uses utf16 offsets",
			msg: Message{
				ChatType: ChatTypeSupergroup,
				Text:     "\U0001F600 @gembot hi",
				Entities: []Entity{{Type: "mention", Offset: 3, Length: 7}},
			},
			want: true,
		},
		{
			name: "reply to bot",
			msg:  Message{ChatType: ChatTypeSupergroup, Text: "and you?", ReplyToUserID: 42},
			want: true,
		},
		{
			name: "reply to someone else",
			msg:  Message{ChatType: ChatTypeGroup, Text: "and you?", ReplyToUserID: 7},
			want: false,
		},
		{
			name: "plain group chatter",
			msg:  Message{ChatType: ChatTypeGroup, Text: "just talking"},
			want: false,
		},
		{
			name: "non mention entity ignored",
			msg: Message{
				ChatType: ChatTypeGroup,
				Text:     "@gembot hi",
				Entities: []Entity{{Type: "hashtag", Offset: 0, Length: 7}},
			},
			want: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldRespond(tc.msg, botID); got != tc.want {
				t.Fatalf("ShouldRespond = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestShouldRespondRejectsEverythingElse(t *testing.T) {
	if ShouldRespond(Message{ChatType: "channel", Text: "hi"}, botID) {
		t.Fatal("channel messages must be rejected")
	}
	if ShouldRespond(Message{ChatType: ChatTypePrivate, Text: "   "}, botID) {
		t.Fatal("empty text must be rejected")
	}
}

func TestStripMention(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@gembot What's up", "What's up"},
		{"hey @gembot, got a second?", "hey , got a second?"},
		{"no mention here", "no mention here"},
	}
	for _, tc := range tests {
		if got := StripMention(tc.in, "gembot"); got != tc.want {
			t.Errorf("StripMention(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
