package leap

import (
	"fmt"
	"time"
)

// Pending is the direction of a leap second: an insertion (+1), a
// deletion (-1), or none (0). It carries no time of its own.
type Pending int8

// Values a Pending flag can take, matching the LEAP_61/LEAP_59 kernel
// status bits.
const (
	NoLeap Pending = 0
	Insert Pending = 1
	Delete Pending = -1
)

// arm window: how far ahead of a scheduled leap second the kernel status
// flag gets set. linuxptp arms it at the top of the day the leap occurs;
// we use the same one-day lookahead.
const armWindow = 24 * time.Hour

// Tracker answers whether a realtime clock timestamp falls in the
// UTC/TAI-ambiguous window around a leap second, and what leap flag
// should currently be armed on the kernel.
type Tracker struct {
	table []Second
}

// NewTracker loads the leap second table from srcfile ("" for the system
// default) and returns a Tracker over it.
func NewTracker(srcfile string) (*Tracker, error) {
	table, err := Parse(srcfile)
	if err != nil {
		return nil, fmt.Errorf("loading leap second table: %w", err)
	}
	return &Tracker{table: table}, nil
}

// NewTrackerFromTable builds a Tracker directly from an in-memory table,
// letting callers exercise IsAmbiguous/Status without a tzdata file.
func NewTrackerFromTable(table []Second) *Tracker {
	return &Tracker{table: table}
}

// nextEvent returns the earliest leap second event at or after ts, and its
// direction, or ok=false if none is known.
func (t *Tracker) nextEvent(ts time.Time) (event time.Time, dir Pending, ok bool) {
	var best time.Time
	var bestDir Pending
	found := false
	for i, s := range t.table {
		et := s.Time()
		if et.Before(ts) {
			continue
		}
		if !found || et.Before(best) {
			best = et
			found = true
			prevNleap := int32(0)
			if i > 0 {
				prevNleap = t.table[i-1].Nleap
			}
			if s.Nleap > prevNleap {
				bestDir = Insert
			} else {
				bestDir = Delete
			}
		}
	}
	return best, bestDir, found
}

// IsAmbiguous reports whether ts falls inside the one-second window during
// which UTC time does not map bijectively onto TAI seconds: the last
// second before a leap boundary (Second.Time), which the kernel plays
// twice for an inserted leap second. update_sync_offset in the reference
// implementation refuses to compute a leap status during this window and
// asks the caller to drop the sample instead.
func (t *Tracker) IsAmbiguous(ts time.Time) bool {
	event, _, ok := t.nextEvent(ts)
	if !ok {
		return false
	}
	return ts.Before(event) && !ts.Before(event.Add(-time.Second))
}

// Status computes the leap flag that should currently be armed on a
// CLOCK_REALTIME-backed kernel clock given the wall time ts. It arms the
// flag armWindow before the event and clears it once the event has passed.
// leapSet is the caller's current armed state; if the event has just
// passed while still armed, the leap second is folded back into
// *syncOffset (a UTC/TAI-style correction changes by one second once the
// leap has actually occurred), mirroring leap_second_status's
// (*leap, *sync_offset) side effects in the reference implementation.
func (t *Tracker) Status(ts time.Time, leapSet bool, syncOffset *float64) Pending {
	event, dir, ok := t.nextEvent(ts.Add(-armWindow))
	if !ok {
		return NoLeap
	}
	if !ts.Before(event) {
		if leapSet {
			*syncOffset += float64(dir)
		}
		return NoLeap
	}
	if ts.Before(event.Add(-armWindow)) {
		return NoLeap
	}
	return dir
}
