package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Errors returned by frame parsing. Callers drop the frame and log;
// a parse failure is never fatal to the connection.
var (
	ErrNotTickFrame = errors.New("not a tick frame")
	ErrEmptyFrame   = errors.New("empty tick frame")
)

// tickFrameWire is the upstream wire format for a batch of ticks.
type tickFrameWire struct {
	Type string         `json:"type"`
	Data []tickEntryWire `json:"data"`
}

// tickEntryWire is a single tick entry within a frame.
type tickEntryWire struct {
	Token     string  `json:"token"`
	LTP       float64 `json:"ltp"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	OI        int64   `json:"oi"`
	Volume    int64   `json:"volume"`
	Ts        int64   `json:"ts"`
}

// ParseTicks parses an upstream tick frame into Ticks. Entries with a
// malformed token or a missing timestamp are skipped so that one bad
// instrument cannot disrupt the rest of the frame. The skipped count is
// returned for metrics.
func ParseTicks(data []byte) (ticks []Tick, skipped int, err error) {
	var frame tickFrameWire
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, 0, fmt.Errorf("parse tick frame: %w", err)
	}

	switch frame.Type {
	case "ticks":
	case "ping", "subscribed", "unsubscribed":
		// Control frames carry no tick data.
		return nil, 0, ErrNotTickFrame
	default:
		return nil, 0, ErrNotTickFrame
	}

	if len(frame.Data) == 0 {
		return nil, 0, ErrEmptyFrame
	}

	ticks = make([]Tick, 0, len(frame.Data))
	for _, e := range frame.Data {
		token, err := NormalizeToken(e.Token)
		if err != nil {
			skipped++
			continue
		}
		if e.Ts <= 0 {
			skipped++
			continue
		}
		ticks = append(ticks, Tick{
			Token:     token,
			LTP:       e.LTP,
			Change:    e.Change,
			ChangePct: e.ChangePct,
			OI:        e.OI,
			Volume:    e.Volume,
			Timestamp: e.Ts,
		})
	}

	return ticks, skipped, nil
}
