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

package servo

import (
	"container/ring"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// Default PI gain scale factors, matching linuxptp's pi.c.
const (
	kpScale = 0.7
	kiScale = 0.3

	maxKpNormMax = 1.0
	maxKiNormMax = 2.0

	freqEstMargin = 0.001
)

type filterVerdict uint8

const (
	filterNoSpike filterVerdict = iota
	filterSpike
	filterReset
)

// PICfg tunes the gain schedule of a PI servo.
type PICfg struct {
	KpScale    float64
	KpExponent float64
	KpNormMax  float64
	KiScale    float64
	KiExponent float64
	KiNormMax  float64
}

// DefaultPICfg returns linuxptp's default PI gain schedule.
func DefaultPICfg() *PICfg {
	return &PICfg{
		KpScale:    kpScale,
		KpExponent: 0.0,
		KpNormMax:  maxKpNormMax,
		KiScale:    kiScale,
		KiExponent: 0.0,
		KiNormMax:  maxKiNormMax,
	}
}

// FilterCfg tunes the spike filter layered on top of a PI servo.
type FilterCfg struct {
	MinOffsetLocked   int64   // minimum offset treated as a spike candidate while locked
	MaxFreqChange     int64   // ppb the oscillator is allowed to drift per second
	MaxSkipCount      int     // samples the filter will drop before forcing a reset
	OffsetStdevFactor float64 // stddev multiplier for the offset spike threshold
	FreqStdevFactor   float64 // stddev multiplier for the frequency spike threshold
	RingSize          int     // samples kept to compute the running mean/stddev
}

// DefaultFilterCfg returns linuxptp's default spike filter tuning.
func DefaultFilterCfg() *FilterCfg {
	return &FilterCfg{
		MinOffsetLocked:   15000,
		MaxFreqChange:     40,
		MaxSkipCount:      15,
		OffsetStdevFactor: 3.0,
		FreqStdevFactor:   3.0,
		RingSize:          30,
	}
}

type filterSample struct {
	offset int64
	freq   float64
}

// Filter tracks a rolling window of accepted samples and flags offsets
// that look like measurement spikes rather than real clock movement.
type Filter struct {
	offsetStdev  int64
	offsetMean   int64
	freqStdev    float64
	freqMean     float64
	skippedCount int
	samples      *ring.Ring
	samplesCount int
	cfg          *FilterCfg
}

// PI is a proportional-integral frequency-steering servo.
type PI struct {
	Config
	offset             [2]int64
	local              [2]uint64
	drift              float64
	kp                 float64
	ki                 float64
	lastFreq           float64
	count              int
	lastCorrectionTime time.Time
	filter             *Filter
	cfg                *PICfg
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// SetMaxFreq caps the frequency the servo may request to +/-freq ppb.
func (s *PI) SetMaxFreq(freq float64) {
	s.maxFreq = freq
}

func (s *PI) isSpike(offset int64) filterVerdict {
	if s.filter == nil {
		return filterNoSpike
	}
	return s.filter.isSpike(offset, s.lastCorrectionTime)
}

// Sample feeds one offset measurement, taken at local time localTs
// (nanoseconds since the epoch on the local clock), into the servo and
// returns the frequency adjustment (in PPB) to apply along with the
// resulting state.
func (s *PI) Sample(offset int64, localTs uint64) (float64, State) {
	var kiTerm, freqEstInterval, localDiff float64
	state := StateUnlocked
	ppb := s.lastFreq
	sOffset := absInt64(offset)

	switch s.count {
	case 0:
		s.offset[0] = offset
		s.local[0] = localTs
		s.count = 1
	case 1:
		s.offset[1] = offset
		s.local[1] = localTs

		if s.local[0] >= s.local[1] {
			s.count = 0
			break
		}

		localDiff = float64(s.local[1]-s.local[0]) / math.Pow10(9)
		localDiff += localDiff * freqEstMargin
		freqEstInterval = 0.016 / s.ki
		if freqEstInterval > 1000.0 {
			freqEstInterval = 1000.0
		}
		if localDiff < freqEstInterval {
			log.Warn("servo Sample called too often, not enough time passed since first sample")
			break
		}

		s.drift += (math.Pow10(9) - s.drift) * float64(s.offset[1]-s.offset[0]) /
			float64(s.local[1]-s.local[0])

		if s.drift < -s.maxFreq {
			s.drift = -s.maxFreq
		} else if s.drift > s.maxFreq {
			s.drift = s.maxFreq
		}

		if (s.FirstUpdate && s.FirstStepThreshold > 0 && s.FirstStepThreshold < sOffset) ||
			(s.StepThreshold > 0 && s.StepThreshold < sOffset) {
			state = StateJump
		} else {
			state = StateLocked
		}
		ppb = s.drift
		s.count = 2
		s.FirstUpdate = false
	case 2:
		if s.StepThreshold != 0 && s.StepThreshold < sOffset {
			s.count = 0
			state = StateUnlocked
			if s.filter != nil {
				s.filter.Reset()
			}
			break
		}
		switch s.isSpike(offset) {
		case filterSpike:
			ppb = s.MeanFreq()
			state = StateLocked
			s.filter.skippedCount++
			log.Warnf("servo filtered out offset %d", offset)
			return ppb, state
		case filterReset:
			s.count = 0
			s.drift = 0
			s.filter.Reset()
			state = StateUnlocked
			log.Warn("servo was reset")
			return ppb, state
		}
		state = StateLocked
		kiTerm = s.ki * float64(offset)
		ppb = s.kp*float64(offset) + s.drift + kiTerm
		if ppb < -s.maxFreq {
			ppb = -s.maxFreq
		} else if ppb > s.maxFreq {
			ppb = s.maxFreq
		} else {
			s.drift += kiTerm
		}
	}
	s.lastFreq = ppb
	if state == StateLocked && s.filter != nil {
		s.filter.Sample(&filterSample{offset: offset, freq: ppb})
		s.filter.skippedCount = 0
		s.lastCorrectionTime = time.Now()
	}
	return ppb, state
}

// SyncInterval informs the servo of the master's sync message interval, in
// seconds, and recomputes the PI gains from it.
func (s *PI) SyncInterval(interval float64) {
	s.kp = s.cfg.KpScale * math.Pow(interval, s.cfg.KpExponent)
	if s.kp > s.cfg.KpNormMax/interval {
		s.kp = s.cfg.KpNormMax / interval
	}

	s.ki = s.cfg.KiScale * math.Pow(interval, s.cfg.KiExponent)
	if s.ki > s.cfg.KiNormMax/interval {
		s.ki = s.cfg.KiNormMax / interval
	}
}

func (f *Filter) isSpike(offset int64, lastCorrection time.Time) filterVerdict {
	if f.skippedCount >= f.cfg.MaxSkipCount {
		return filterReset
	}
	maxOffsetLocked := int64(f.cfg.OffsetStdevFactor * float64(f.offsetStdev))
	secPassed := math.Round(time.Since(lastCorrection).Seconds())
	waitFactor := secPassed * (f.cfg.FreqStdevFactor*f.freqStdev + float64(f.cfg.MaxFreqChange/2))

	maxOffsetLocked += int64(waitFactor)

	if offset > maxInt64(maxOffsetLocked, f.cfg.MinOffsetLocked) {
		return filterSpike
	}
	return filterNoSpike
}

// Sample folds one accepted sample into the filter's rolling window.
func (f *Filter) Sample(s *filterSample) {
	f.samples.Value = s
	f.samples = f.samples.Next()
	if f.samplesCount != f.cfg.RingSize {
		f.samplesCount++
	}
	var offsetSigmaSq, offsetMean int64
	var freqSigmaSq, freqMean float64
	f.samples.Do(func(val any) {
		if val == nil {
			return
		}
		v := val.(*filterSample)
		offsetSigmaSq += v.offset * v.offset
		offsetMean += v.offset
		freqSigmaSq += v.freq * v.freq
		freqMean += v.freq
	})
	f.offsetMean = offsetMean / int64(f.samplesCount)
	f.offsetStdev = int64(math.Sqrt(float64(offsetSigmaSq) / float64(f.samplesCount)))

	f.freqMean = freqMean / float64(f.samplesCount)
	f.freqStdev = math.Sqrt(freqSigmaSq / float64(f.samplesCount))
}

// Reset clears the filter's rolling window.
func (f *Filter) Reset() {
	f.samples = ring.New(f.cfg.RingSize)
	f.offsetStdev = 0
	f.offsetMean = 0
	f.freqStdev = 0.0
	f.freqMean = 0.0
	f.skippedCount = 0
	f.samplesCount = 0
}

// MeanFreq returns the filter's best current estimate of the steering
// frequency.
func (f *Filter) MeanFreq() float64 {
	return f.freqMean
}

// MeanFreq returns the servo's best current estimate of the steering
// frequency: the filter's rolling mean if a filter is attached, otherwise
// the last frequency computed by Sample.
func (s *PI) MeanFreq() float64 {
	if s.filter != nil {
		return s.filter.MeanFreq()
	}
	return s.lastFreq
}

// New creates a PI servo seeded with an initial steering frequency.
func New(cfg Config, piCfg *PICfg, freq float64) *PI {
	var pi PI
	pi.Config = cfg
	pi.cfg = piCfg
	pi.lastFreq = freq
	pi.drift = freq
	return &pi
}

// NewFilter attaches a spike filter to an existing PI servo.
func NewFilter(s *PI, cfg *FilterCfg) *Filter {
	filter := &Filter{cfg: cfg}
	filter.Reset()
	s.filter = filter
	return filter
}
