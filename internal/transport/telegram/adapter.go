// Package telegram ingests messages from Telegram chats and channels over
// long polling and emits them as transport.SourceEvents.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"teleforward/internal/transport"
	"teleforward/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Buffer is the event channel capacity; events beyond it are dropped
	// and reported in aggregate.
	Buffer int
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	events chan transport.SourceEvent
	// out holds the active sink (the events channel or nil once stopped).
	// Handlers run on telebot's poll loop and must never block it.
	out atomic.Value // chan<- transport.SourceEvent

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// dropped counts events discarded because the consumer was slower than
	// the poll loop; reported periodically instead of per event.
	dropped uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:    cfg,
		log:    log,
		bot:    b,
		events: make(chan transport.SourceEvent, buffer),
	}
	var nilOut chan<- transport.SourceEvent
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Bot exposes the underlying client so the chat sender can share one
// connection and identity with the ingest side.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

func (a *Adapter) Events() <-chan transport.SourceEvent { return a.events }

func (a *Adapter) registerHandlers() {
	forward := func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		a.push(a.eventFromMessage(m))
		return nil
	}
	a.bot.Handle(tele.OnText, forward)
	a.bot.Handle(tele.OnChannelPost, forward)
}

func (a *Adapter) eventFromMessage(m *tele.Message) transport.SourceEvent {
	ev := transport.SourceEvent{
		ID:        fmt.Sprintf("%d:%d", m.Chat.ID, m.ID),
		ChatID:    m.Chat.ID,
		ChatTitle: chatTitle(m.Chat),
		Sender:    senderName(m),
		Text:      m.Text,
		Link:      messageLink(m.Chat, m.ID),
		At:        m.Time(),
	}
	if m.Sender != nil && a.bot.Me != nil && m.Sender.ID == a.bot.Me.ID {
		ev.Outgoing = true
	}
	return ev
}

func (a *Adapter) push(ev transport.SourceEvent) {
	v := a.out.Load()
	out, _ := v.(chan<- transport.SourceEvent)
	if out == nil {
		return
	}
	select {
	case out <- ev:
	default:
		atomic.AddUint64(&a.dropped, 1)
	}
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.out.Store((chan<- transport.SourceEvent)(a.events))

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reportDrops(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-runCtx.Done()
		a.bot.Stop()
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	}()
	return nil
}

func (a *Adapter) reportDrops(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	report := func() {
		if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
			a.log.Warn("source events dropped (channel full)",
				logx.Int64("count", int64(n)),
				logx.Int("chan_cap", cap(a.events)))
		}
	}
	for {
		select {
		case <-ctx.Done():
			report()
			return
		case <-ticker.C:
			report()
		}
	}
}

// Stop halts polling and waits out the long-poll grace window. It never
// blocks shutdown longer than the caller's deadline.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	cancel := a.cancel
	a.cancel = nil
	var nilOut chan<- transport.SourceEvent
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		return nil
	case <-t.C:
		a.log.Warn("telegram stop timed out waiting for poll loop")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func chatTitle(c *tele.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func senderName(m *tele.Message) string {
	if m.Sender == nil {
		// Channel posts carry no sender; signatures are opt-in.
		return m.Signature
	}
	if name := strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName); name != "" {
		return name
	}
	return m.Sender.Username
}

// messageLink builds a t.me permalink. Public chats link by username;
// supergroups and channels without one use the /c/ internal form. Private
// chats have no linkable form.
func messageLink(c *tele.Chat, msgID int) string {
	if c.Username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", c.Username, msgID)
	}
	const marker = -1000000000000
	if c.ID < marker {
		return fmt.Sprintf("https://t.me/c/%d/%d", -(c.ID - marker), msgID)
	}
	return ""
}
