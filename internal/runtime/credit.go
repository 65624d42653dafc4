package runtime

import "sync/atomic"

// creditWindow counts the deliveries a link may still receive. available is
// kept within [0, max] by compare-and-swap on both sides.
type creditWindow struct {
	max       int64
	available atomic.Int64
}

func newCreditWindow(max int) *creditWindow {
	w := &creditWindow{max: int64(max)}
	w.available.Store(int64(max))
	return w
}

// take consumes one unit. It reports false when none is left.
func (w *creditWindow) take() bool {
	for {
		cur := w.available.Load()
		if cur <= 0 {
			return false
		}
		if w.available.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// give restores one unit. It reports false when the window is already full.
func (w *creditWindow) give() bool {
	for {
		cur := w.available.Load()
		if cur >= w.max {
			return false
		}
		if w.available.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (w *creditWindow) Max() int         { return int(w.max) }
func (w *creditWindow) Available() int   { return int(w.available.Load()) }
func (w *creditWindow) Outstanding() int { return int(w.max - w.available.Load()) }
