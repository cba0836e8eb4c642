package repo

import (
	"context"

	"github.com/anthropics/tgmod/internal/biz/domain"
)

// Outbound is the transport interface for messages the core sends out.
// Every call returns its error; the caller decides whether a failure is
// best-effort (log and continue) or must escalate.
type Outbound interface {
	// SendText sends a plain text message to a chat.
	SendText(ctx context.Context, chatID int64, text string) error

	// SendButtons sends a text message with the traffic-button keyboard
	// (buttons are rendered sorted ascending by order, capped for display).
	SendButtons(ctx context.Context, chatID int64, text string, buttons []domain.TrafficButton) error

	// Forward relays a message from its source chat to a destination chat.
	Forward(ctx context.Context, toChatID, fromChatID int64, messageID int) error
}
