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

// Package engine is the clock synchronization core: it reads offset
// measurements from a source clock (a PHC, a PPS signal, or the kernel's
// cross-timestamping ioctls), feeds them through a PI servo, and steers a
// destination clock's frequency or steps it, while tracking leap seconds
// and an external PTP daemon's lock state through a management channel.
package engine

import "time"

// ClockAdj is the capability every destination clock this engine can
// steer must provide. Both phc.Device (a PHC) and phc.Realtime
// (CLOCK_REALTIME) implement it, so the engine never needs to know which
// kind of clock it's driving.
type ClockAdj interface {
	ClockID() int32
	FrequencyPPB() (float64, error)
	AdjFreqPPB(freqPPB float64) error
	Step(step time.Duration) error
	SetLeap(dir int) error
	MaxFreqPPB() float64
}

// unix.CLOCK_REALTIME's value, duplicated here so this package doesn't
// need to import golang.org/x/sys/unix just to recognize it.
const clockRealtimeID int32 = 0

// isRealtime reports whether c is (or wraps) CLOCK_REALTIME.
func isRealtime(c ClockAdj) bool {
	return c.ClockID() == clockRealtimeID
}
