// Package notify delivers run reports to Telegram and triggers downstream
// GitHub workflows.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	defaultTelegramBase = "https://api.telegram.org"
	defaultTimeout      = 10 * time.Second
)

// ErrNotConfigured is returned when credentials are missing and nothing was sent.
var ErrNotConfigured = errors.New("notifier not configured")

// TelegramConfig holds the bot credentials. ChatID is either a numeric chat
// ID or an @channel username.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	APIBase  string
	Timeout  time.Duration
}

// Telegram implements crawler.Notifier with the Bot API sendMessage call.
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
	logger *zap.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegram builds a Telegram notifier. No request is made until Notify.
func NewTelegram(cfg TelegramConfig, client *http.Client, logger *zap.Logger) *Telegram {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultTelegramBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{cfg: cfg, client: client, logger: logger.Named("telegram")}
}

// Configured reports whether both the token and chat ID are set.
func (t *Telegram) Configured() bool {
	return t.cfg.BotToken != "" && t.cfg.ChatID != ""
}

// Notify posts message as Markdown. It returns ErrNotConfigured without credentials.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	if !t.Configured() {
		t.logger.Warn("telegram credentials missing, skipping notification")
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	// The bot API has no context parameter; the request context comes from the client.
	client := contextClient{ctx: ctx, client: t.client}
	if t.bot == nil {
		endpoint := strings.TrimRight(t.cfg.APIBase, "/") + "/bot%s/%s"
		bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.BotToken, endpoint, client)
		if err != nil {
			return fmt.Errorf("connect telegram bot: %w", err)
		}
		t.bot = bot
	}
	t.bot.Client = client

	msg := t.newMessage(message)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	t.logger.Info("report sent to telegram")
	return nil
}

func (t *Telegram) newMessage(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(t.cfg.ChatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	return tgbotapi.NewMessageToChannel(t.cfg.ChatID, text)
}

type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}
