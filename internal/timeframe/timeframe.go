package timeframe

import (
	"fmt"
	"time"

	"fundingflow/internal/models"
)

// Window is a time interval in canonical milliseconds, closed on both ends.
type Window struct {
	Since int64
	Until int64
}

// Duration returns the window length in milliseconds.
func (w Window) Duration() int64 {
	return w.Until - w.Since
}

// Supported symbolic intervals.
const (
	Hour  = "1h"
	Day   = "1d"
	Week  = "7d"
	Month = "1M"
	Year  = "1y"
)

// Intervals lists every supported symbolic interval.
func Intervals() []string {
	return []string{Hour, Day, Week, Month, Year}
}

// Valid reports whether tf is a supported symbolic interval.
func Valid(tf string) bool {
	_, err := durationOf(tf)
	return err == nil
}

func durationOf(tf string) (time.Duration, error) {
	switch tf {
	case Hour:
		return time.Hour, nil
	case Day:
		return 24 * time.Hour, nil
	case Week:
		return 7 * 24 * time.Hour, nil
	case Month:
		// Approximation for one month, as upstream dashboards expect.
		return 30 * 24 * time.Hour, nil
	case Year:
		return 365 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe %q: use one of %v", tf, Intervals())
	}
}

// Resolve maps a symbolic interval to a [since, until] millisecond window
// ending at now.
func Resolve(tf string, now time.Time) (Window, error) {
	d, err := durationOf(tf)
	if err != nil {
		return Window{}, err
	}
	until := now.UnixMilli()
	return Window{Since: until - d.Milliseconds(), Until: until}, nil
}

// Unit is the timestamp unit an exchange uses on the wire and in storage.
type Unit int

const (
	Millis Unit = iota
	Seconds
	Nanos
)

func (u Unit) String() string {
	switch u {
	case Seconds:
		return "s"
	case Nanos:
		return "ns"
	default:
		return "ms"
	}
}

// FromMillis converts a canonical millisecond value into the unit.
func (u Unit) FromMillis(ms int64) int64 {
	switch u {
	case Seconds:
		return ms / 1000
	case Nanos:
		return ms * 1_000_000
	default:
		return ms
	}
}

// ToMillis converts a native value of the unit back to milliseconds.
func (u Unit) ToMillis(v int64) int64 {
	switch u {
	case Seconds:
		return v * 1000
	case Nanos:
		return v / 1_000_000
	default:
		return v
	}
}

// unitTable is the single source of truth for per-exchange timestamp units.
// Every query path that compares timestamps across exchanges must go through
// it; raw cross-exchange comparisons are silently wrong.
var unitTable = map[models.Exchange]Unit{
	models.ExchangeAevo:        Nanos,
	models.ExchangeBybit:       Millis,
	models.ExchangeGateio:      Seconds,
	models.ExchangeHyperliquid: Millis,
}

// UnitFor returns the native timestamp unit of the given exchange.
func UnitFor(ex models.Exchange) Unit {
	if u, ok := unitTable[ex]; ok {
		return u
	}
	return Millis
}

// ToNative converts a canonical millisecond window into the exchange's
// native unit.
func ToNative(ex models.Exchange, w Window) Window {
	u := UnitFor(ex)
	return Window{Since: u.FromMillis(w.Since), Until: u.FromMillis(w.Until)}
}
