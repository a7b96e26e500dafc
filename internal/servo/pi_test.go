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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPISample(t *testing.T) {
	pi := New(DefaultConfig(), DefaultPICfg(), -111288.406372)
	pi.SyncInterval(1)
	require.InEpsilon(t, -111288.406372, pi.lastFreq, 0.00001)
	require.InEpsilon(t, -111288.406372, pi.drift, 0.00001)

	freq, state := pi.Sample(1191, 1674148530671467104)
	require.InEpsilon(t, -111288.406372, freq, 0.00001)
	require.Equal(t, StateUnlocked, state)

	freq, state = pi.Sample(225, 1674148531671518924)
	require.InEpsilon(t, -112254.463816, freq, 0.00001)
	require.Equal(t, StateLocked, state)

	freq, state = pi.Sample(1170, 1674148532671555647)
	require.InEpsilon(t, -111084.463816, freq, 0.00001)
	require.Equal(t, StateLocked, state)

	freq, state = pi.Sample(919, 1674148533671484215)
	require.InEpsilon(t, -110984.463816, freq, 0.00001)
	require.Equal(t, StateLocked, state)

	freq = pi.MeanFreq()
	require.InEpsilon(t, -110984.463816, freq, 0.00001)
}

func TestPIStepSample(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FirstStepThreshold = 200000
	cfg.FirstUpdate = true
	pi := New(cfg, DefaultPICfg(), -111288.406372)
	pi.SyncInterval(1)

	freq, state := pi.Sample(235000, 1674148528671467104)
	require.InEpsilon(t, -111288.406372, freq, 0.00001)
	require.Equal(t, StateUnlocked, state)

	freq, state = pi.Sample(225000, 1674148529671518924)
	require.InEpsilon(t, -121289.001025, freq, 0.00001)
	require.Equal(t, StateJump, state)

	freq, state = pi.Sample(1191, 1674148530671467104)
	require.InEpsilon(t, -120098.001025, freq, 0.00001)
	require.Equal(t, StateLocked, state)

	freq, state = pi.Sample(225, 1674148531671518924)
	require.InEpsilon(t, -120706.701025, freq, 0.00001)
	require.Equal(t, StateLocked, state)
}

func TestPIFilterSkipsSpike(t *testing.T) {
	pi := New(DefaultConfig(), DefaultPICfg(), -111288.406372)
	pi.SyncInterval(1)
	filterCfg := DefaultFilterCfg()
	filterCfg.RingSize = 3
	filterCfg.MaxSkipCount = 2
	NewFilter(pi, filterCfg)

	_, state := pi.Sample(1191, 1674148530671467104)
	require.Equal(t, StateUnlocked, state)
	_, state = pi.Sample(225, 1674148531671518924)
	require.Equal(t, StateLocked, state)
	_, state = pi.Sample(1170, 1674148532671555647)
	require.Equal(t, StateLocked, state)
	_, state = pi.Sample(919, 1674148533671484215)
	require.Equal(t, StateLocked, state)
	require.Equal(t, 0, pi.filter.skippedCount)

	// a wild outlier should be filtered rather than accepted at face value
	freq, state := pi.Sample(919000, 1674148534671684215)
	require.Equal(t, StateLocked, state)
	require.InEpsilon(t, pi.MeanFreq(), freq, 0.00001)
	require.Equal(t, 1, pi.filter.skippedCount)
}

func TestFilterResetsAfterTooManySkips(t *testing.T) {
	pi := New(DefaultConfig(), DefaultPICfg(), -111288.406372)
	pi.SyncInterval(1)
	filterCfg := DefaultFilterCfg()
	filterCfg.RingSize = 3
	filterCfg.MaxSkipCount = 2
	NewFilter(pi, filterCfg)

	pi.Sample(1191, 1674148530671467104)
	pi.Sample(225, 1674148531671518924)
	pi.Sample(1170, 1674148532671555647)
	pi.Sample(919, 1674148533671484215)

	pi.Sample(919000, 1674148534671684215)
	pi.Sample(919000, 1674148535671684215)
	_, state := pi.Sample(919000, 1674148536671684215)
	require.Equal(t, StateUnlocked, state)
	require.Equal(t, 0, pi.count)
}
