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

package phc

import (
	"time"
)

// Reading is the result of one cross-clock offset measurement: the offset
// of the source clock from the reference clock, the local timestamp the
// reading is anchored to, and the "delay" — the width of the bracket used
// to take the measurement, which serves as a quality indicator.
type Reading struct {
	Offset time.Duration
	Ts     time.Time
	Delay  time.Duration
}

// ReadPHC brackets nSamples reads of dev's time between two local clock
// reads and keeps the bracket with the smallest interval, the same
// "quickest read" technique linuxptp's read_phc/sysoff_estimate use. local
// is called to read the local reference clock and is expected to be cheap
// and fast (typically time.Now for CLOCK_REALTIME, or another PHC's
// Device.Time).
func ReadPHC(dev *Device, local func() (time.Time, error), nSamples int) (Reading, error) {
	return bestFromBrackets(local, dev.Time, nSamples)
}

// bestFromBrackets is ReadPHC's bracket-selection core, split out so it
// can be exercised without a real device file descriptor: src stands in
// for dev.Time.
func bestFromBrackets(local, src func() (time.Time, error), nSamples int) (Reading, error) {
	if nSamples <= 0 {
		nSamples = 1
	}
	var best Reading
	haveBest := false
	for i := 0; i < nSamples; i++ {
		tDst1, err := local()
		if err != nil {
			return Reading{}, err
		}
		tSrc, err := src()
		if err != nil {
			return Reading{}, err
		}
		tDst2, err := local()
		if err != nil {
			return Reading{}, err
		}
		interval := tDst2.Sub(tDst1)
		if !haveBest || interval < best.Delay {
			best = Reading{
				Offset: tDst1.Sub(tSrc) + interval/2,
				Ts:     tDst2,
				Delay:  interval,
			}
			haveBest = true
		}
	}
	return best, nil
}

// SysoffExtended asks the kernel to take nSamples bracketed readings in a
// single ioctl (PTP_SYS_OFFSET_EXTENDED) and keeps the bracket with the
// smallest interval, avoiding the extra syscalls ReadPHC needs.
func SysoffExtended(dev *Device, nSamples uint32) (Reading, error) {
	ext, err := dev.ReadSysoffExtended(nSamples)
	if err != nil {
		return Reading{}, err
	}
	return bestFromExtended(ext), nil
}

// bestFromExtended picks the bracket with the smallest system-clock
// interval out of a PTP_SYS_OFFSET_EXTENDED result.
func bestFromExtended(ext *PTPSysOffsetExtended) Reading {
	t1 := ext.TS[0][0].Time()
	tp := ext.TS[0][1].Time()
	t2 := ext.TS[0][2].Time()
	best := Reading{
		Delay:  t2.Sub(t1),
		Ts:     t1.Add(t2.Sub(t1) / 2),
		Offset: t1.Add(t2.Sub(t1)/2).Sub(tp),
	}
	for i := 1; i < int(ext.NSamples); i++ {
		t1 := ext.TS[i][0].Time()
		tp := ext.TS[i][1].Time()
		t2 := ext.TS[i][2].Time()
		interval := t2.Sub(t1)
		if interval < best.Delay {
			ts := t1.Add(interval / 2)
			best = Reading{
				Delay:  interval,
				Ts:     ts,
				Offset: ts.Sub(tp),
			}
		}
	}
	return best
}
