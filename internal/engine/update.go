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
	"time"

	"github.com/timekit-io/phc2sys/internal/leap"
	"github.com/timekit-io/phc2sys/internal/phc"
	"github.com/timekit-io/phc2sys/internal/servo"
)

// pollPMC drains whatever the management channel has ready without
// blocking the sample loop, folding a fresh UTC offset and leap flags in
// as soon as a cycle completes. It is rate-limited to pmcUpdateInterval,
// gated on the sample timestamp ts rather than wall-clock time, matching
// PMC_UPDATE_INTERVAL's use of the sample's own ts in the reference
// implementation. The comparison is a signed, wrap-safe
// ts.Sub(pmcLastUpdate) rather than raw ts arithmetic, but the intervals
// it enforces are identical.
func (c *Clock) pollPMC(ts time.Time) error {
	if c.pmc == nil {
		return nil
	}
	if c.havePmcUpdate {
		since := ts.Sub(c.pmcLastUpdate)
		if since > 0 && since < pmcUpdateInterval {
			return nil
		}
	}
	done, err := c.pmc.Poll(0)
	if err != nil {
		return err
	}
	if done {
		c.pmcLastUpdate = ts
		c.havePmcUpdate = true
	}
	return nil
}

// leapPending decides the leap direction that should be armed right now,
// preferring a live reading from the management channel over the local
// leap second table, since a running PTP daemon's grandmaster is the
// authoritative source once one is available. Whenever the management
// channel has a fresh TIME_PROPERTIES_DATA_SET, its currentUtcOffset
// replaces syncOffset outright, mirroring run_pmc's TIME_PROPERTIES_DATA_SET
// branch in the reference implementation; the direction it's applied with
// was already fixed in Boot from the source/destination clock types.
// Consulting the local table also consumes a leap second once it has
// passed while still armed, folding its effect back into the sync offset.
func (c *Clock) leapPending(ts time.Time) leap.Pending {
	if c.pmc != nil && c.pmc.HaveTimeProperties() {
		c.syncOffset = float64(c.pmc.UTCOffset)
		switch {
		case c.pmc.Leap61:
			return leap.Insert
		case c.pmc.Leap59:
			return leap.Delete
		default:
			return leap.NoLeap
		}
	}
	if c.leapTracker != nil {
		return c.leapTracker.Status(ts, c.leapSet, &c.syncOffset)
	}
	return leap.NoLeap
}

// leapClassificationTs returns the timestamp leap handling should be
// classified against, applying the same two adjustments
// update_sync_offset makes in the reference implementation before
// consulting the leap table: read CLOCK_REALTIME directly when the
// destination isn't the system clock, since it's CLOCK_REALTIME that
// observes the leap second regardless of which clock is being steered;
// and, when the destination is CLOCK_REALTIME but the servo hasn't
// locked yet, project ts forward to the time the pending step will land
// on, since that's the instant the leap table needs to be evaluated at.
func (c *Clock) leapClassificationTs(ts time.Time, offsetNs float64) time.Time {
	if !isRealtime(c.dst) {
		return time.Now()
	}
	if c.servoState == servo.StateUnlocked {
		return ts.Add(-time.Duration(offsetNs) - time.Duration(c.syncOffsetNs()))
	}
	return ts
}

// applyLeap arms or clears the destination's kernel leap flag for the
// already-classified pending direction, or (with -x) folds it directly
// into the offset fed to the servo, avoiding a syscall when nothing has
// changed since the last sample.
func (c *Clock) applyLeap(pending leap.Pending, offsetNs float64) float64 {
	if !c.kernelLeap {
		return offsetNs + float64(pending)*float64(time.Second/time.Nanosecond)
	}
	want := pending != leap.NoLeap
	if want == c.leapSet {
		return offsetNs
	}
	if err := c.dst.SetLeap(int(pending)); err != nil {
		c.logger.WithError(err).Warn("failed to update kernel leap second flag")
		return offsetNs
	}
	c.leapSet = want
	return offsetNs
}

// syncOffsetNs returns the fixed offset (in nanoseconds, signed by
// syncOffsetDir) that should be layered onto every raw reading, covering
// the classic phc2sys use of -O to compensate for a known UTC/TAI or
// PHC-domain skew between source and destination.
func (c *Clock) syncOffsetNs() float64 {
	if c.syncOffsetDir == 0 {
		return 0
	}
	return float64(c.syncOffsetDir) * c.syncOffset * 1e9
}

// process feeds one cross-clock reading through leap handling and the
// servo, steers the destination clock accordingly, and folds the sample
// into the stats window and metrics registry.
func (c *Clock) process(r phc.Reading) {
	if err := c.pollPMC(r.Ts); err != nil {
		c.logger.WithError(err).Warn("management channel poll failed")
	}

	offsetNs := float64(r.Offset)

	if c.leapTracker != nil || (c.pmc != nil && c.pmc.HaveTimeProperties()) {
		classTs := c.leapClassificationTs(r.Ts, offsetNs)
		if c.leapTracker != nil && c.leapTracker.IsAmbiguous(classTs) {
			c.logger.Warn("skipping sample inside leap second ambiguity window")
			return
		}
		offsetNs = c.applyLeap(c.leapPending(classTs), offsetNs)
	}
	offsetNs += c.syncOffsetNs()

	freqPPB, state := c.servo.Sample(int64(offsetNs), uint64(r.Ts.UnixNano()))
	c.servoState = state

	var err error
	switch state {
	case servo.StateJump:
		err = c.dst.Step(-time.Duration(offsetNs))
		if err == nil {
			err = c.dst.AdjFreqPPB(-freqPPB)
		}
	case servo.StateLocked:
		err = c.dst.AdjFreqPPB(-freqPPB)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to steer destination clock")
	}

	c.recordSample(offsetNs, freqPPB, float64(r.Delay), r.Delay != 0)
}

func (c *Clock) recordSample(offsetNs, freqPPB, delayNs float64, hasDelay bool) {
	if c.metrics != nil {
		c.metrics.Offset.Set(offsetNs)
		c.metrics.FreqPPB.Set(freqPPB)
		if hasDelay {
			c.metrics.Delay.Set(delayNs)
		}
		c.metrics.ServoState.Set(float64(c.servoState))
	}

	if c.stats != nil && c.stats.Enabled() {
		c.stats.Add(offsetNs, freqPPB, delayNs, hasDelay)
		if c.stats.Ready() {
			c.logSummary()
			c.stats.Reset()
		}
		return
	}

	c.logSample(offsetNs, freqPPB, delayNs, hasDelay)
}
