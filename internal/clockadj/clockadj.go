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

// Package clockadj wraps the CLOCK_ADJTIME syscall for the small set of
// operations a clock-steering servo needs: reading and setting frequency,
// stepping, and arming a kernel leap second.
package clockadj

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// PPBToTimexPPM converts between parts-per-billion and the 16-bit
// fractional parts-per-million unit struct timex uses for Freq.
// man clock_adjtime(2).
const PPBToTimexPPM = 65.536

// clock_adjtime modes, from linux/timex.h.
const (
	AdjOffset    uint32 = 0x0001
	AdjFrequency uint32 = 0x0002
	AdjMaxError  uint32 = 0x0004
	AdjEstError  uint32 = 0x0008
	AdjStatus    uint32 = 0x0010
	AdjTimeConst uint32 = 0x0020
	AdjTAI       uint32 = 0x0080
	AdjSetOffset uint32 = 0x0100
	AdjMicro     uint32 = 0x1000
	AdjNano      uint32 = 0x2000
	AdjTick      uint32 = 0x4000
)

// clock status bits used to arm a pending leap second, from linux/timex.h.
const (
	staInsert uint32 = 0x0010
	staDelete uint32 = 0x0020
)

// FrequencyPPB reads a clock's current frequency offset in PPB.
func FrequencyPPB(clockid int32) (freqPPB float64, state int, err error) {
	tx := &unix.Timex{}
	state, err = unix.ClockAdjtime(clockid, tx)
	freqPPB = float64(tx.Freq) / PPBToTimexPPM
	return freqPPB, state, err
}

// AdjFreqPPB sets a clock's frequency offset in PPB.
func AdjFreqPPB(clockid int32, freqPPB float64) (state int, err error) {
	tx := &unix.Timex{}
	setFreq(tx, freqPPB)
	tx.Modes = AdjFrequency
	return unix.ClockAdjtime(clockid, tx)
}

// Step steps a clock forward or backward by the given duration.
func Step(clockid int32, step time.Duration) (state int, err error) {
	sign := 1
	if step < 0 {
		sign = -1
		step = -step
	}
	tx := &unix.Timex{}
	tx.Modes = AdjSetOffset | AdjNano
	sec := time.Duration(float64(sign) * (float64(step) / float64(time.Second)))
	usec := time.Duration(sign) * (step % time.Second)
	setTime(tx, sec, usec)
	if tx.Time.Usec < 0 {
		tx.Time.Sec--
		tx.Time.Usec += 1000000000
	}
	return unix.ClockAdjtime(clockid, tx)
}

// MaxFreqPPB returns the maximum frequency adjustment the clock supports.
func MaxFreqPPB(clockid int32) (freqPPB float64, state int, err error) {
	tx := &unix.Timex{}
	state, err = unix.ClockAdjtime(clockid, tx)
	if err != nil {
		return 0.0, state, err
	}
	freqPPB = float64(tx.Tolerance) / PPBToTimexPPM
	if freqPPB == 0 {
		freqPPB = 500000
	}
	return freqPPB, state, nil
}

// SetSync clears the clock's unsynchronized status bit.
func SetSync(clockid int32) error {
	tx := &unix.Timex{}
	tx.Modes = AdjStatus | AdjMaxError
	state, err := unix.ClockAdjtime(clockid, tx)
	if err == nil && state != unix.TIME_OK {
		return fmt.Errorf("clock state %d is not TIME_OK after setting sync state", state)
	}
	return err
}

// SetLeap arms or clears a pending kernel leap second on clockid. dir > 0
// arms an insertion, dir < 0 arms a deletion, dir == 0 clears any pending
// leap. It has no effect on clocks other than CLOCK_REALTIME, which is the
// only clock the kernel discipline honors leap flags on.
func SetLeap(clockid int32, dir int) (state int, err error) {
	tx := &unix.Timex{}
	tx.Modes = AdjStatus
	switch {
	case dir > 0:
		tx.Status = int32(staInsert)
	case dir < 0:
		tx.Status = int32(staDelete)
	default:
		tx.Status = 0
	}
	return unix.ClockAdjtime(clockid, tx)
}
