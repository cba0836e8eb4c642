package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"
)

// Options configures the Telegram client.
type Options struct {
	Token      string
	WebhookURL string        // when set, updates arrive via webhook instead of long polling
	Listen     string        // webhook listen address, e.g. ":8443"
	MinGap     time.Duration // minimum spacing between outgoing API calls
	Debug      bool
}

// Client wraps the bot API behind a pacing gate: at most one API call
// is in flight at a time, and consecutive calls are spaced at least
// MinGap apart. Telegram throttles bots that burst.
type Client struct {
	bot    *tele.Bot
	minGap time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewClient builds the bot with either a long poller or a webhook
// endpoint, depending on Options.WebhookURL.
func NewClient(opts Options) (*Client, error) {
	var poller tele.Poller = &tele.LongPoller{Timeout: 10 * time.Second}
	if opts.WebhookURL != "" {
		poller = &tele.Webhook{
			Listen:   opts.Listen,
			Endpoint: &tele.WebhookEndpoint{PublicURL: opts.WebhookURL},
		}
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   opts.Token,
		Poller:  poller,
		Verbose: opts.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Client{bot: bot, minGap: opts.MinGap}, nil
}

// Bot exposes the underlying bot for handler registration.
func (c *Client) Bot() *tele.Bot {
	return c.bot
}

// Start begins receiving updates. Blocks until Stop is called.
func (c *Client) Start() {
	fmt.Printf("[Telegram] Bot @%s started\n", c.bot.Me.Username)
	c.bot.Start()
}

// Stop shuts down the poller.
func (c *Client) Stop() {
	c.bot.Stop()
}

// pace holds the client lock for the duration of fn, enforcing the
// single-flight and minimum-gap rules.
func (c *Client) pace(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.minGap - time.Since(c.last); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn()
	c.last = time.Now()
	return err
}

// SendText sends a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.pace(ctx, func() error {
		_, err := c.bot.Send(tele.ChatID(chatID), text)
		if err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil
	})
}

// SendMarkup sends a text message with a reply markup attached.
func (c *Client) SendMarkup(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) error {
	return c.pace(ctx, func() error {
		_, err := c.bot.Send(tele.ChatID(chatID), text, markup)
		if err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil
	})
}

// Forward re-posts a stored message into another chat.
func (c *Client) Forward(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	return c.pace(ctx, func() error {
		stored := &tele.StoredMessage{
			MessageID: strconv.Itoa(messageID),
			ChatID:    fromChatID,
		}
		_, err := c.bot.Forward(tele.ChatID(toChatID), stored)
		if err != nil {
			return fmt.Errorf("failed to forward message: %w", err)
		}
		return nil
	})
}
