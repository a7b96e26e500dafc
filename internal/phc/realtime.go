package phc

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/timekit-io/phc2sys/internal/clockadj"
)

// Realtime adapts CLOCK_REALTIME to the same capability surface Device
// exposes for a PHC, so the sync engine can treat "steer the system clock"
// and "steer a NIC's hardware clock" identically.
type Realtime struct{}

// ClockID returns unix.CLOCK_REALTIME.
func (Realtime) ClockID() int32 { return unix.CLOCK_REALTIME }

// Time returns the current wall clock time.
func (Realtime) Time() (time.Time, error) { return time.Now(), nil }

// FrequencyPPB reads the system clock's current frequency offset in PPB.
func (Realtime) FrequencyPPB() (float64, error) {
	freqPPB, state, err := clockadj.FrequencyPPB(unix.CLOCK_REALTIME)
	if err == nil && state != unix.TIME_OK {
		return freqPPB, fmt.Errorf("CLOCK_REALTIME state %d is not TIME_OK", state)
	}
	return freqPPB, err
}

// AdjFreqPPB sets the system clock's frequency offset in PPB.
func (Realtime) AdjFreqPPB(freqPPB float64) error {
	state, err := clockadj.AdjFreqPPB(unix.CLOCK_REALTIME, freqPPB)
	if err == nil && state != unix.TIME_OK {
		return fmt.Errorf("CLOCK_REALTIME state %d is not TIME_OK", state)
	}
	return err
}

// Step steps the system clock by the given duration.
func (Realtime) Step(step time.Duration) error {
	state, err := clockadj.Step(unix.CLOCK_REALTIME, step)
	if err == nil && state != unix.TIME_OK {
		return fmt.Errorf("CLOCK_REALTIME state %d is not TIME_OK", state)
	}
	return err
}

// SetLeap arms or clears a pending kernel leap second on the system clock.
func (Realtime) SetLeap(dir int) error {
	_, err := clockadj.SetLeap(unix.CLOCK_REALTIME, dir)
	return err
}

// MaxFreqPPB returns the frequency adjustment range the kernel reports for
// CLOCK_REALTIME.
func (Realtime) MaxFreqPPB() float64 {
	freqPPB, _, err := clockadj.MaxFreqPPB(unix.CLOCK_REALTIME)
	if err != nil {
		return DefaultMaxClockFreqPPB
	}
	return freqPPB
}
