package book

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kucoin-depth-viewer/apperrors"
	"kucoin-depth-viewer/models"
)

const (
	SideAsk = "ask"
	SideBid = "bid"

	typeMessage = "message"
)

// envelope is the common shape of every inbound frame
type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// depthPayload is the data object of a level2Depth message
type depthPayload struct {
	Asks      json.RawMessage `json:"asks"`
	Bids      json.RawMessage `json:"bids"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Decode turns one text frame into a depth update. It returns (nil, nil) for
// every frame whose type is not "message": welcome, ack, pong and error alike.
func Decode(raw []byte) (*models.DepthUpdateEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.New(apperrors.Decode, "decode", fmt.Errorf("invalid frame: %w", err))
	}

	if env.Type != typeMessage {
		return nil, nil
	}

	if isNull(env.Data) {
		return nil, apperrors.Newf(apperrors.Decode, "decode", "message frame has no data")
	}
	var payload depthPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, apperrors.New(apperrors.Decode, "decode", fmt.Errorf("invalid data object: %w", err))
	}

	asks, err := decodeSide(SideAsk, payload.Asks)
	if err != nil {
		return nil, err
	}
	bids, err := decodeSide(SideBid, payload.Bids)
	if err != nil {
		return nil, err
	}

	event := &models.DepthUpdateEvent{
		Topic:   env.Topic,
		Subject: env.Subject,
		Snapshot: models.DepthSnapshot{
			Asks: asks,
			Bids: bids,
		},
	}
	event.Timestamp = parseMillis(payload.Timestamp)
	return event, nil
}

// parseMillis is lenient: the exchange timestamp is informational only.
func parseMillis(raw json.RawMessage) time.Time {
	if isNull(raw) {
		return time.Time{}
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}
	}
	ms, err := n.Int64()
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func decodeSide(side string, raw json.RawMessage) ([]models.DepthLevel, error) {
	if isNull(raw) {
		return nil, apperrors.Entry(side, -1, errors.New("missing field"))
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, apperrors.Entry(side, -1, fmt.Errorf("not an array: %w", err))
	}

	levels := make([]models.DepthLevel, 0, len(entries))
	for i, entry := range entries {
		level, err := decodeLevel(entry)
		if err != nil {
			return nil, apperrors.Entry(side, i, err)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// decodeLevel parses one [priceString, sizeNumber] pair.
func decodeLevel(raw json.RawMessage) (models.DepthLevel, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return models.DepthLevel{}, fmt.Errorf("level is not an array: %w", err)
	}
	if len(pair) != 2 {
		return models.DepthLevel{}, fmt.Errorf("expected [price, size], got %d elements", len(pair))
	}

	var priceText string
	if err := json.Unmarshal(pair[0], &priceText); err != nil {
		return models.DepthLevel{}, fmt.Errorf("price %s is not a string", pair[0])
	}
	price, err := decimal.NewFromString(priceText)
	if err != nil {
		return models.DepthLevel{}, fmt.Errorf("invalid price %q: %w", priceText, err)
	}

	sizeRaw := bytes.TrimSpace(pair[1])
	if len(sizeRaw) > 0 && sizeRaw[0] == '"' {
		return models.DepthLevel{}, fmt.Errorf("size %s is a string, want a number", sizeRaw)
	}
	var sizeNum json.Number
	if err := json.Unmarshal(sizeRaw, &sizeNum); err != nil {
		return models.DepthLevel{}, fmt.Errorf("size %s is not a number", pair[1])
	}
	size, err := sizeNum.Int64()
	if err != nil {
		return models.DepthLevel{}, fmt.Errorf("size %s is not an integer", sizeNum)
	}
	if size < 0 {
		return models.DepthLevel{}, fmt.Errorf("negative size %d", size)
	}

	return models.DepthLevel{Price: price, Size: size}, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
