package capture

import "time"

// debouncer coalesces DOM change signals: the document is re-read once the
// page has been quiet for window, or after max signals, whichever is first.
type debouncer struct {
	window  time.Duration
	max     int
	pending int
	timer   *time.Timer
	timerCh <-chan time.Time
}

func newDebouncer(window time.Duration, max int) *debouncer {
	if window <= 0 {
		window = 250 * time.Millisecond
	}
	if max <= 0 {
		max = 1000
	}
	return &debouncer{window: window, max: max}
}

// add records a signal and reports whether the caller should flush now.
func (d *debouncer) add() bool {
	d.pending++
	if d.pending >= d.max {
		return true
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.window)
	d.timerCh = d.timer.C
	return false
}

// timerC fires when the window expires. It is nil when nothing is pending.
func (d *debouncer) timerC() <-chan time.Time { return d.timerCh }

// take resets the debouncer and reports whether anything was pending.
func (d *debouncer) take() bool {
	n := d.pending
	d.pending = 0
	if d.timer != nil {
		d.timer.Stop()
		d.timer, d.timerCh = nil, nil
	}
	return n > 0
}
