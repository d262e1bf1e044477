package workers

import "time"

// Window tracks worker failures in a sliding window using a fixed ring of
// timestamps, giving exact "at most K restarts within W" semantics without
// unbounded growth.
type Window struct {
	max   int
	span  time.Duration
	times []time.Time
	head  int
	count int
}

// NewWindow returns a window allowing at most max restarts within span.
func NewWindow(max int, span time.Duration) *Window {
	return &Window{
		max:   max,
		span:  span,
		times: make([]time.Time, max),
	}
}

// Allow records a failure at t and reports whether the restart budget still
// covers it. The (max+1)th failure inside span returns false; entries older
// than span are evicted first.
func (w *Window) Allow(t time.Time) bool {
	for w.count > 0 && t.Sub(w.times[w.head]) > w.span {
		w.head = (w.head + 1) % w.max
		w.count--
	}

	if w.count >= w.max {
		return false
	}

	w.times[(w.head+w.count)%w.max] = t
	w.count++
	return true
}
