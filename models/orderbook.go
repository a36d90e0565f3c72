package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token is the short-lived bullet credential used to open one feed session.
type Token string

// SubscriptionRequest is the first frame sent on a new feed session.
type SubscriptionRequest struct {
	ID       uint64 `json:"id"`
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	Response bool   `json:"response"`
}

// NewSubscriptionRequest builds a subscribe request that asks for an ack.
func NewSubscriptionRequest(id uint64, topic string) SubscriptionRequest {
	return SubscriptionRequest{
		ID:       id,
		Type:     "subscribe",
		Topic:    topic,
		Response: true,
	}
}

// DepthLevel is one price level of the book.
type DepthLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  int64           `json:"size"`
}

// DepthSnapshot replaces any previous view of the channel; it is never merged.
// Asks are kept in receipt order (best ask first), bids in descending price order.
type DepthSnapshot struct {
	Asks []DepthLevel `json:"asks"`
	Bids []DepthLevel `json:"bids"`
}

// DepthUpdateEvent is the decoded form of one "message" frame.
type DepthUpdateEvent struct {
	Topic     string        `json:"topic"`
	Subject   string        `json:"subject"`
	Timestamp time.Time     `json:"timestamp"`
	Snapshot  DepthSnapshot `json:"snapshot"`
}
