package model

import (
	"fmt"
	"regexp"
	"strings"
)

// Token uniquely identifies a tradeable instrument within a market
// namespace, e.g. "NSE:RELIANCE" or "NASDAQ:AAPL".
type Token string

// tokenRE matches MARKET:SYMBOL tokens for the supported namespaces.
var tokenRE = regexp.MustCompile(`^(NSE|BSE|NFO|NYSE|NASDAQ):([A-Z0-9][A-Z0-9._-]{0,40})$`)

// ParseToken validates and normalizes a raw token string, returning the
// market namespace and symbol.
func ParseToken(raw string) (market, symbol string, err error) {
	m := tokenRE.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(raw)))
	if m == nil {
		return "", "", fmt.Errorf("invalid instrument token %q", raw)
	}
	return m[1], m[2], nil
}

// NormalizeToken validates a raw token string and returns the
// canonical uppercase Token. Wire data may arrive in any case; store
// and registry keys always use the canonical form.
func NormalizeToken(raw string) (Token, error) {
	market, symbol, err := ParseToken(raw)
	if err != nil {
		return "", err
	}
	return Token(market + ":" + symbol), nil
}

// Market returns the market namespace portion of the token, or "" if
// the token is malformed.
func (t Token) Market() string {
	market, _, err := ParseToken(string(t))
	if err != nil {
		return ""
	}
	return market
}

// Valid reports whether the token is well-formed.
func (t Token) Valid() bool {
	_, _, err := ParseToken(string(t))
	return err == nil
}

// Tick is the latest observed market data for one token. One Tick per
// token represents "latest known state"; older ticks are discarded,
// never merged field-by-field (volume-delta accumulation in the profile
// is the one documented exception).
type Tick struct {
	Token     Token   // Instrument token
	LTP       float64 // Last traded price
	Change    float64 // Absolute change vs previous close
	ChangePct float64 // Percent change vs previous close
	OI        int64   // Open interest (0 for cash instruments)
	Volume    int64   // Cumulative session volume
	Timestamp int64   // Exchange timestamp (ms since epoch)
}

// Cursor is a crosshair position shared between chart panels.
type Cursor struct {
	Time  int64   // Time index under the cursor (ms since epoch)
	Price float64 // Price level under the cursor
}

// ConnState is the feed connection state. Exactly one instance per
// market namespace; observational only for UI badges.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
