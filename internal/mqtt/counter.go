package mqtt

import (
	"sync"
	"time"
)

// DailyCounter counts completions and resets at local midnight. It is
// safe for concurrent use.
type DailyCounter struct {
	mu       sync.Mutex
	count    int64
	resetDay string // YYYY-MM-DD of last reset
	loc      *time.Location
	now      func() time.Time
}

// NewDailyCounter creates a counter using loc for midnight detection.
// If loc is nil, [time.Local] is used.
func NewDailyCounter(loc *time.Location) *DailyCounter {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyCounter{loc: loc, now: time.Now}
	d.resetDay = d.today()
	return d
}

// Inc records one completion and returns today's total.
func (d *DailyCounter) Inc() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeReset()
	d.count++
	return d.count
}

// Snapshot returns today's total.
func (d *DailyCounter) Snapshot() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeReset()
	return d.count
}

func (d *DailyCounter) today() string {
	return d.now().In(d.loc).Format(time.DateOnly)
}

// maybeReset zeroes the count if the local date has changed. Must be
// called with d.mu held.
func (d *DailyCounter) maybeReset() {
	if today := d.today(); today != d.resetDay {
		d.count = 0
		d.resetDay = today
	}
}
