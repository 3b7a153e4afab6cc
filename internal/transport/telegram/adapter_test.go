package telegram

import (
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"teleforward/internal/transport"
)

func TestMessageLink(t *testing.T) {
	tests := []struct {
		name  string
		chat  *tele.Chat
		msgID int
		want  string
	}{
		{"public username", &tele.Chat{ID: -1001234567890, Username: "somechannel"}, 7, "https://t.me/somechannel/7"},
		{"private supergroup", &tele.Chat{ID: -1001234567890}, 7, "https://t.me/c/1234567890/7"},
		{"basic group", &tele.Chat{ID: -4567}, 7, ""},
		{"direct chat", &tele.Chat{ID: 12345}, 7, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageLink(tt.chat, tt.msgID); got != tt.want {
				t.Fatalf("messageLink = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSenderName(t *testing.T) {
	tests := []struct {
		name string
		msg  *tele.Message
		want string
	}{
		{"full name", &tele.Message{Sender: &tele.User{FirstName: "Ada", LastName: "Lovelace"}}, "Ada Lovelace"},
		{"first only", &tele.Message{Sender: &tele.User{FirstName: "Ada"}}, "Ada"},
		{"username fallback", &tele.Message{Sender: &tele.User{Username: "ada"}}, "ada"},
		{"channel signature", &tele.Message{Signature: "editorial"}, "editorial"},
		{"anonymous post", &tele.Message{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := senderName(tt.msg); got != tt.want {
				t.Fatalf("senderName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventFromMessage(t *testing.T) {
	a := &Adapter{bot: &tele.Bot{Me: &tele.User{ID: 42}}}
	now := time.Now().Unix()
	m := &tele.Message{
		ID:       10,
		Unixtime: now,
		Chat:     &tele.Chat{ID: -1009, Title: "News"},
		Sender:   &tele.User{ID: 7, FirstName: "Ada"},
		Text:     "hello",
	}

	ev := a.eventFromMessage(m)
	if ev.ID != "-1009:10" {
		t.Fatalf("ID = %q", ev.ID)
	}
	if ev.ChatTitle != "News" || ev.Sender != "Ada" || ev.Text != "hello" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Outgoing {
		t.Fatal("message from another user marked outgoing")
	}

	m.Sender = &tele.User{ID: 42}
	if ev := a.eventFromMessage(m); !ev.Outgoing {
		t.Fatal("own message not marked outgoing")
	}
}

func TestPushDropsWhenFull(t *testing.T) {
	a := &Adapter{events: make(chan transport.SourceEvent, 1)}
	a.out.Store((chan<- transport.SourceEvent)(a.events))

	a.push(transport.SourceEvent{ID: "1"})
	a.push(transport.SourceEvent{ID: "2"})

	if n := atomic.LoadUint64(&a.dropped); n != 1 {
		t.Fatalf("dropped = %d, want 1", n)
	}
	if got := <-a.events; got.ID != "1" {
		t.Fatalf("kept event %s, want the first", got.ID)
	}
}

func TestPushAfterStopIsNoop(t *testing.T) {
	a := &Adapter{events: make(chan transport.SourceEvent, 1)}
	var nilOut chan<- transport.SourceEvent
	a.out.Store(nilOut)

	a.push(transport.SourceEvent{ID: "1"})
	select {
	case ev := <-a.events:
		t.Fatalf("event %s delivered after stop", ev.ID)
	default:
	}
}
