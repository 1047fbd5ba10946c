package channel

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/duskline/crosstalk/internal/bus"
	"github.com/duskline/crosstalk/internal/config"
)

func turnEvent(speaker, text string) bus.TurnEvent {
	return bus.TurnEvent{
		SessionID: "session-1",
		Subject:   "fusion energy",
		Turn: bus.Turn{
			Seq:       1,
			Speaker:   speaker,
			Text:      text,
			Timestamp: time.Now(),
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// mockChannel records lifecycle calls and delivered events.
type mockChannel struct {
	name     string
	startErr error

	mu        sync.Mutex
	started   bool
	stopped   bool
	delivered []bus.TurnEvent
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockChannel) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *mockChannel) Deliver(ev bus.TurnEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, ev)
	return nil
}

func (m *mockChannel) deliveredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delivered)
}

func TestConsoleDeliverRendersBorderedTurn(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	if err := c.Deliver(turnEvent("Vera", "Fusion just hit a new milestone.")); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	out := buf.String()
	border := strings.Repeat("─", 80)
	if got := strings.Count(out, border); got != 3 {
		t.Errorf("output has %d borders, want 3", got)
	}
	if !strings.Contains(out, "Vera") {
		t.Error("output missing speaker name")
	}
	if !strings.Contains(out, "Fusion just hit a new milestone.") {
		t.Error("output missing turn text")
	}
	speakerIdx := strings.Index(out, "Vera")
	textIdx := strings.Index(out, "Fusion just hit")
	if speakerIdx >= textIdx {
		t.Error("speaker should appear before the turn text")
	}
}

func TestConsoleHeader(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Header("fusion energy")

	out := buf.String()
	if !strings.Contains(out, "Topic: fusion energy") {
		t.Errorf("header missing topic line: %q", out)
	}
	if !strings.Contains(out, strings.Repeat("=", 80)) {
		t.Error("header missing banner rule")
	}
	if !strings.Contains(out, "Ctrl+C") {
		t.Error("header missing stop hint")
	}
}

func TestConsoleLifecycleIsNoop(t *testing.T) {
	c := NewConsole(&bytes.Buffer{})
	if err := c.Start(context.Background()); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

// mockBot captures outbound telegram messages.
type mockBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	failHTML bool
	err      error
}

func (b *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, fmt.Errorf("unexpected chattable type %T", c)
	}
	if b.err != nil {
		return tgbotapi.Message{}, b.err
	}
	if b.failHTML && msg.ParseMode == tgbotapi.ModeHTML {
		return tgbotapi.Message{}, fmt.Errorf("can't parse entities")
	}
	b.sent = append(b.sent, msg)
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *mockBot) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "crosstalk_test_bot"}
}

func newTestTelegram(t *testing.T, bot *mockBot) *Telegram {
	t.Helper()
	cfg := config.TelegramConfig{Enabled: true, Token: "test-token", ChatID: 42}
	tg, err := NewTelegramWithFactory(cfg, func(token string) (TelegramBot, error) {
		return bot, nil
	})
	if err != nil {
		t.Fatalf("NewTelegramWithFactory() error = %v", err)
	}
	if err := tg.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return tg
}

func TestTelegramRequiresToken(t *testing.T) {
	_, err := NewTelegramWithFactory(config.TelegramConfig{ChatID: 42}, nil)
	if err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestTelegramRequiresChatID(t *testing.T) {
	_, err := NewTelegramWithFactory(config.TelegramConfig{Token: "tok"}, nil)
	if err == nil {
		t.Fatal("expected error for missing chat_id")
	}
}

func TestTelegramDeliverBeforeStart(t *testing.T) {
	cfg := config.TelegramConfig{Token: "tok", ChatID: 42}
	tg, err := NewTelegramWithFactory(cfg, func(token string) (TelegramBot, error) {
		return &mockBot{}, nil
	})
	if err != nil {
		t.Fatalf("NewTelegramWithFactory() error = %v", err)
	}
	if err := tg.Deliver(turnEvent("Vera", "hello")); err == nil {
		t.Fatal("expected error delivering before Start")
	}
}

func TestTelegramDeliverSendsBoldSpeaker(t *testing.T) {
	bot := &mockBot{}
	tg := newTestTelegram(t, bot)

	if err := tg.Deliver(turnEvent("Vera", "hello there")); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bot.sent))
	}
	msg := bot.sent[0]
	if msg.ChatID != 42 {
		t.Errorf("ChatID = %d, want 42", msg.ChatID)
	}
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("ParseMode = %q, want HTML", msg.ParseMode)
	}
	want := "<b>Vera</b>\nhello there"
	if msg.Text != want {
		t.Errorf("Text = %q, want %q", msg.Text, want)
	}
}

func TestTelegramDeliverEscapesHTML(t *testing.T) {
	bot := &mockBot{}
	tg := newTestTelegram(t, bot)

	if err := tg.Deliver(turnEvent("Moss", "x < y && y > z")); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	text := bot.sent[0].Text
	if !strings.Contains(text, "x &lt; y &amp;&amp; y &gt; z") {
		t.Errorf("Text = %q, want escaped entities", text)
	}
}

func TestTelegramDeliverChunksLongTurns(t *testing.T) {
	bot := &mockBot{}
	tg := newTestTelegram(t, bot)

	line := strings.Repeat("a", 80)
	long := strings.Repeat(line+"\n", 100) // ~8100 chars
	long = strings.TrimSuffix(long, "\n")

	if err := tg.Deliver(turnEvent("Vera", long)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if len(bot.sent) < 2 {
		t.Fatalf("sent %d messages, want at least 2", len(bot.sent))
	}
	var parts []string
	for i, msg := range bot.sent {
		if len(msg.Text) > 4000 {
			t.Errorf("chunk %d is %d chars, want <= 4000", i, len(msg.Text))
		}
		parts = append(parts, msg.Text)
	}
	joined := strings.Join(parts, "\n")
	want := "<b>Vera</b>\n" + long
	if joined != want {
		t.Errorf("rejoined chunks differ from original (%d vs %d chars)", len(joined), len(want))
	}
}

func TestTelegramDeliverFallsBackToPlainText(t *testing.T) {
	bot := &mockBot{failHTML: true}
	tg := newTestTelegram(t, bot)

	if err := tg.Deliver(turnEvent("Vera", "hello")); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bot.sent))
	}
	if bot.sent[0].ParseMode != "" {
		t.Errorf("ParseMode = %q, want plain text fallback", bot.sent[0].ParseMode)
	}
}

func TestTelegramDeliverReturnsSendError(t *testing.T) {
	bot := &mockBot{err: fmt.Errorf("network down")}
	tg := newTestTelegram(t, bot)

	if err := tg.Deliver(turnEvent("Vera", "hello")); err == nil {
		t.Fatal("expected error when every send fails")
	}
}

func TestManagerBuildsEnabledChannels(t *testing.T) {
	cfg := config.ChannelsConfig{
		Console: config.ConsoleConfig{Enabled: true},
	}
	m, err := NewManager(cfg, bus.NewBus())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	got := m.EnabledChannels()
	if len(got) != 1 || got[0] != "console" {
		t.Errorf("EnabledChannels() = %v, want [console]", got)
	}
}

func TestManagerRejectsBadTelegramConfig(t *testing.T) {
	cfg := config.ChannelsConfig{
		Telegram: config.TelegramConfig{Enabled: true}, // no token
	}
	if _, err := NewManager(cfg, bus.NewBus()); err == nil {
		t.Fatal("expected error for telegram without token")
	}
}

func TestManagerDeliversPublishedTurns(t *testing.T) {
	b := bus.NewBus()
	m, err := NewManager(config.ChannelsConfig{}, b)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	mc := &mockChannel{name: "mock"}
	m.Register(mc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}

	b.Publish(turnEvent("Vera", "first"))
	b.Publish(turnEvent("Moss", "second"))
	waitFor(t, func() bool { return mc.deliveredCount() == 2 })

	if mc.delivered[0].Turn.Speaker != "Vera" || mc.delivered[1].Turn.Speaker != "Moss" {
		t.Errorf("delivered order = %s, %s; want Vera, Moss",
			mc.delivered[0].Turn.Speaker, mc.delivered[1].Turn.Speaker)
	}

	if err := m.StopAll(); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	if !mc.stopped {
		t.Error("channel not stopped after StopAll")
	}
}

func TestManagerStopAllFlushesBufferedTurns(t *testing.T) {
	b := bus.NewBus()
	m, err := NewManager(config.ChannelsConfig{}, b)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	mc := &mockChannel{name: "mock"}
	m.Register(mc)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}

	// Stop immediately after publishing: the buffered turns must still
	// reach the channel before teardown completes.
	b.Publish(turnEvent("Vera", "closing thought"))
	b.Publish(turnEvent("Moss", "sign-off"))
	if err := m.StopAll(); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}

	if got := mc.deliveredCount(); got != 2 {
		t.Errorf("delivered %d turns, want 2", got)
	}
}

func TestManagerStartAllPropagatesFailure(t *testing.T) {
	m, err := NewManager(config.ChannelsConfig{}, bus.NewBus())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.Register(&mockChannel{name: "bad", startErr: fmt.Errorf("no credentials")})

	if err := m.StartAll(context.Background()); err == nil {
		t.Fatal("expected StartAll to surface channel failure")
	}
}

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"<b>bold</b>", "&lt;b&gt;bold&lt;/b&gt;"},
		{"a & b", "a &amp; b"},
	}
	for _, tt := range tests {
		if got := escapeHTML(tt.in); got != tt.want {
			t.Errorf("escapeHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
