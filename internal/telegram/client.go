// Package telegram provides a client for sending notifications via Telegram Bot API.
// It formats accumulation and confluence alerts into human-readable messages and
// handles delivery with retry logic for reliability.
//
// The client implements detector.AlertNotifier and uses MarkdownV2 formatting
// with escaping for every user-controlled string (token symbols, addresses).
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/whalescope/internal/detector"
	"github.com/rewired-gh/whalescope/internal/models"
)

// sender is the part of tgbotapi.BotAPI the client needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot              sender
	chatID           int64
	maxRetries       int
	retryDelayBase   time.Duration
	confluenceWindow time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:              bot,
		chatID:           chatIDInt,
		maxRetries:       maxRetries,
		retryDelayBase:   retryDelayBase,
		confluenceWindow: detector.DefaultConfluenceRules().Window,
	}, nil
}

// NotifyAccumulation sends a silent accumulation alert
func (c *Client) NotifyAccumulation(ctx context.Context, walletID, token string, purchaseCount int) error {
	return c.send(ctx, formatAccumulation(walletID, token, purchaseCount))
}

// NotifyConfluence sends a confluence alert listing the participating wallets
func (c *Client) NotifyConfluence(ctx context.Context, token string, wallets []models.WalletSummary, level detector.ConfidenceLevel) error {
	return c.send(ctx, formatConfluence(token, wallets, level, c.confluenceWindow))
}

// send delivers text with linear backoff between attempts
func (c *Client) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("telegram send cancelled: %w", ctx.Err())
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

func formatAccumulation(walletID, token string, purchaseCount int) string {
	var b strings.Builder
	b.WriteString("🕵️ *Possible silent accumulation*\n\n")
	fmt.Fprintf(&b, "%d buys of *%s* detected\n", purchaseCount, escapeMarkdownV2(token))
	fmt.Fprintf(&b, "👛 Wallet: %s\n", escapeMarkdownV2(walletID))
	return b.String()
}

func formatConfluence(token string, wallets []models.WalletSummary, level detector.ConfidenceLevel, window time.Duration) string {
	emoji := "⚡"
	if level == detector.ConfidenceHigh {
		emoji = "🔥"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s confluence*\n\n", emoji, escapeMarkdownV2(string(level)))
	fmt.Fprintf(&b, "%d whales bought *%s* within %s\n\n", len(wallets), escapeMarkdownV2(token), formatDuration(window))

	for i, w := range wallets {
		addr := w.Address
		if addr == "" {
			addr = w.ID
		}
		line := fmt.Sprintf("%d. %s", i+1, addr)
		if w.CurrentScore.Valid {
			line += fmt.Sprintf(" (score %s)", w.CurrentScore.Decimal.StringFixed(2))
		}
		b.WriteString(escapeMarkdownV2(line))
		b.WriteString("\n")
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . ! and the escape character itself
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '\\', '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if hours := int(d.Hours()); hours >= 1 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
