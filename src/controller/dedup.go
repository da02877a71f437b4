package controller

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"signalrouter/src/externalmodel"
)

// dedupWindow remembers recent signal fingerprints. A zero window disables it.
type dedupWindow struct {
	window time.Duration
	mu     sync.Mutex
	seen   map[string]time.Time
}

func newDedupWindow(window time.Duration) *dedupWindow {
	return &dedupWindow{window: window, seen: make(map[string]time.Time)}
}

func fingerprint(sig externalmodel.TradingSignal) string {
	return strings.Join([]string{
		strings.ToUpper(sig.Symbol),
		strings.ToLower(sig.Direction),
		strings.ToLower(sig.Comment),
		sig.TimeOfMessage,
		strconv.FormatFloat(sig.PriceOrZero(), 'f', -1, 64),
	}, "|")
}

// Seen records sig and reports whether the same fingerprint arrived within the window.
func (d *dedupWindow) Seen(sig externalmodel.TradingSignal, now time.Time) bool {
	if d == nil || d.window <= 0 {
		return false
	}

	key := fingerprint(sig)

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, k)
		}
	}

	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = now
	return false
}
