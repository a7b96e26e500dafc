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

// Package stats accumulates rolling offset/frequency/delay statistics over
// a fixed-size window and reports a summary line once the window fills,
// mirroring the reference implementation's periodic stats output.
package stats

import (
	"math"

	"github.com/eclesh/welford"
)

// Accumulator tracks mean, standard deviation, rms and max-abs of a stream
// of samples using Welford's online algorithm for mean/variance.
type Accumulator struct {
	w       *welford.Stats
	sumSq   float64
	maxAbs  float64
	nValues int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{w: welford.New()}
}

// Add folds one sample into the accumulator.
func (a *Accumulator) Add(v float64) {
	a.w.Add(v)
	a.sumSq += v * v
	if abs := math.Abs(v); abs > a.maxAbs {
		a.maxAbs = abs
	}
	a.nValues++
}

// Count returns the number of samples folded in so far.
func (a *Accumulator) Count() int { return a.nValues }

// Mean returns the running mean.
func (a *Accumulator) Mean() float64 { return a.w.Mean() }

// Stddev returns the running standard deviation.
func (a *Accumulator) Stddev() float64 { return a.w.Stddev() }

// RMS returns the running root-mean-square.
func (a *Accumulator) RMS() float64 {
	if a.nValues == 0 {
		return 0
	}
	return math.Sqrt(a.sumSq / float64(a.nValues))
}

// MaxAbs returns the largest absolute value seen.
func (a *Accumulator) MaxAbs() float64 { return a.maxAbs }

// Reset clears the accumulator back to empty.
func (a *Accumulator) Reset() {
	a.w = welford.New()
	a.sumSq = 0
	a.maxAbs = 0
	a.nValues = 0
}

// Window accumulates offset, frequency and delay samples and reports when
// enough samples have been collected to print a summary, matching
// update_clock_stats's stats_max_count gate.
type Window struct {
	MaxCount int
	Offset   *Accumulator
	Freq     *Accumulator
	Delay    *Accumulator
}

// NewWindow creates a stats window that fires once maxCount offset samples
// have been collected. A maxCount of zero disables windowed summaries
// entirely (every sample is logged individually instead).
func NewWindow(maxCount int) *Window {
	return &Window{
		MaxCount: maxCount,
		Offset:   NewAccumulator(),
		Freq:     NewAccumulator(),
		Delay:    NewAccumulator(),
	}
}

// Enabled reports whether this window accumulates at all.
func (w *Window) Enabled() bool { return w.MaxCount > 0 }

// Add folds one update's offset/freq/delay into the window. hasDelay is
// false for measurement sources (like a bare PPS signal with no PHC) that
// don't carry a path delay.
func (w *Window) Add(offsetNs float64, freqPPB float64, delayNs float64, hasDelay bool) {
	w.Offset.Add(offsetNs)
	w.Freq.Add(freqPPB)
	if hasDelay {
		w.Delay.Add(delayNs)
	}
}

// Ready reports whether the window has collected enough offset samples to
// be flushed.
func (w *Window) Ready() bool {
	return w.Enabled() && w.Offset.Count() >= w.MaxCount
}

// Reset clears all three accumulators, starting a fresh window.
func (w *Window) Reset() {
	w.Offset.Reset()
	w.Freq.Reset()
	w.Delay.Reset()
}
