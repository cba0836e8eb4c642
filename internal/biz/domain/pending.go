package domain

import (
	"fmt"
	"time"
)

// Suspected records the template-matcher evidence attached to a request.
type Suspected struct {
	Template string  `json:"template"`
	Score    float64 `json:"score"`
}

// PendingRequest is a post queued for a human approve/reject decision.
// It is created once, read and deleted on resolution, never updated in place.
type PendingRequest struct {
	ID           string     `json:"id"`
	SourceChatID int64      `json:"sourceChatId"`
	MessageID    int        `json:"messageId"`
	FromID       int64      `json:"fromId"`
	FromName     string     `json:"fromName"`
	CreatedAt    time.Time  `json:"createdAt"`
	Suspected    *Suspected `json:"suspected,omitempty"`
}

// NewPendingID derives the request id from submission time and message
// coordinates. Unique by construction within one moderator process.
func NewPendingID(ts time.Time, sourceChatID int64, messageID int) string {
	return fmt.Sprintf("%d_%d_%d", ts.UnixMilli(), sourceChatID, messageID)
}

// InboundPost is a message event as seen by the admission pipeline.
// FromID is zero for anonymous channel posts.
type InboundPost struct {
	SourceChatID int64
	MessageID    int
	FromID       int64
	FromName     string
	Text         string
	SentAt       time.Time
}
