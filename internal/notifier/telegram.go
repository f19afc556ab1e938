package notifier

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/Scotty108/cascadian/monitor"
	"github.com/Scotty108/cascadian/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM NOTIFIER - Pushes high-priority alerts to a chat
// ═══════════════════════════════════════════════════════════════════════════════

// StatusProvider answers the /status command.
type StatusProvider interface {
	Status() monitor.Status
}

// Telegram forwards alerts to a Telegram chat and answers a minimal command
// set. It implements stores.Sink.
type Telegram struct {
	mu      sync.Mutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	status StatusProvider
}

// New creates the notifier. An empty token is a configuration choice, not an
// error; callers should skip construction in that case.
func New(token string, chatID int64, status StatusProvider) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("🔔 Telegram notifier ready")
	return &Telegram{api: api, chatID: chatID, status: status}, nil
}

// Notify pushes high and critical alerts to the chat; lower priorities stay
// in the alert store only.
func (t *Telegram) Notify(a types.Alert) {
	if a.Priority != types.PriorityHigh && a.Priority != types.PriorityCritical {
		return
	}
	icon := "🔔"
	if a.Priority == types.PriorityCritical {
		icon = "🚨"
	}
	text := fmt.Sprintf("%s *%s*\n%s", icon, a.Title, a.Message)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.api.Send(msg); err != nil {
		log.Error().Err(err).Str("alert", a.ID).Msg("Failed to send alert")
	}
}

// Start polls for commands until Stop.
func (t *Telegram) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-stopCh:
				t.api.StopReceivingUpdates()
				return
			case update := <-updates:
				t.handle(update)
			}
		}
	}()
}

// Stop halts command polling.
func (t *Telegram) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
}

func (t *Telegram) handle(update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	if update.Message.Chat.ID != t.chatID {
		return
	}

	switch update.Message.Command() {
	case "status":
		st := t.status.Status()
		text := fmt.Sprintf(
			"📊 *Monitor*\nRunning: %v\nOpen positions: %d\nChecks: %d\nExits: %d",
			st.Running, st.OpenPositions, st.ChecksPerformed, st.ExitsTriggered)
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		t.api.Send(msg)
	case "help":
		t.api.Send(tgbotapi.NewMessage(t.chatID, "Commands: /status /help"))
	}
}
