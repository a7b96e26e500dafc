/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timekit-io/phc2sys/internal/phc"
)

// phcPPSOffsetLimit is how far into the second a PHC-adjusted PPS edge is
// allowed to land before the sample is considered misaligned and dropped,
// matching PHC_PPS_OFFSET_LIMIT (10ms).
const phcPPSOffsetLimit = 10 * time.Millisecond

// errFatalMeasurement marks a source read error that must terminate the
// sync loop rather than be retried on the next tick: a sysoff measurement
// failure, or a PHC read failure while it backs a PPS source, both of
// which the reference implementation treats as fatal (its do_sysoff_loop
// and do_pps_loop both return -1 rather than continue).
var errFatalMeasurement = errors.New("fatal measurement error")

// sample takes one cross-clock reading according to the configured
// source mode: a PPS edge, a kernel-assisted sysoff read against
// CLOCK_REALTIME, or a bracketed read between two PHCs.
func (c *Clock) sample() (phc.Reading, error) {
	switch c.mode {
	case ModePPS:
		return c.samplePPS()
	case ModeSysoff:
		r, err := phc.SysoffExtended(c.src, uint32(c.readings))
		if err != nil {
			return phc.Reading{}, fmt.Errorf("%w: %w", errFatalMeasurement, err)
		}
		return r, nil
	case ModePHC:
		return phc.ReadPHC(c.src, c.localTime, c.readings)
	default:
		return phc.Reading{}, fmt.Errorf("unsupported source mode %d", c.mode)
	}
}

// samplePPS reads one PPS edge and, if a PHC backs the source, uses it to
// resolve which whole second the edge belongs to: it brackets a PHC read
// against the destination clock, projects that reading back onto the
// source clock's timeline, rejects it if it isn't close enough to a
// second boundary to trust, then truncates it to the second and measures
// the PPS edge against it. This mirrors do_pps_loop's use of read_phc in
// the reference implementation.
func (c *Clock) samplePPS() (phc.Reading, error) {
	r, err := c.pps.ReadPPS()
	if err != nil {
		return phc.Reading{}, err
	}
	if c.src == nil {
		return r, nil
	}

	phcReading, err := phc.ReadPHC(c.src, c.localTime, c.readings)
	if err != nil {
		return phc.Reading{}, fmt.Errorf("%w: reading PHC alongside PPS source: %w", errFatalMeasurement, err)
	}

	// project the destination-side reading back onto the source clock's
	// timeline so it can be compared against the second boundary the PPS
	// edge is supposed to mark.
	phcTs := phcReading.Ts.Add(-phcReading.Offset)
	frac := phcTs.UnixNano() % int64(time.Second)
	if frac < 0 {
		frac += int64(time.Second)
	}
	if frac > int64(phcPPSOffsetLimit) {
		return phc.Reading{}, fmt.Errorf("PPS is not in sync with PHC (0.%09d)", frac)
	}
	phcTs = phcTs.Truncate(time.Second)

	return phc.Reading{
		Offset: r.Ts.Sub(phcTs),
		Ts:     r.Ts,
	}, nil
}

// Run drives the sample/steer cycle until ctx is canceled, sleeping for
// the configured update rate between iterations. A PPS source paces
// itself on the incoming signal instead and ignores the configured rate.
func (c *Clock) Run(ctx context.Context) error {
	rate := c.rate
	if rate <= 0 {
		rate = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r, err := c.sample()
		if err != nil {
			if errors.Is(err, errFatalMeasurement) {
				return err
			}
			c.logger.WithError(err).Warn("failed to read source clock")
		} else {
			c.process(r)
		}

		if c.mode == ModePPS {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rate):
		}
	}
}
