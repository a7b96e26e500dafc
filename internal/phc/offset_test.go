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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBestFromBracketsKeepsSmallestInterval(t *testing.T) {
	base := time.Unix(1667818190, 552297000)
	src := base.Add(-37 * time.Millisecond)

	calls := 0
	local := func() (time.Time, error) {
		calls++
		switch calls {
		case 1:
			return base, nil // wide bracket
		case 2:
			return base.Add(200 * time.Microsecond), nil
		case 3:
			return base.Add(300 * time.Microsecond), nil // narrow bracket
		case 4:
			return base.Add(320 * time.Microsecond), nil
		}
		return base, nil
	}

	best, err := bestFromBrackets(local, func() (time.Time, error) { return src, nil }, 2)
	require.NoError(t, err)
	require.Equal(t, 20*time.Microsecond, best.Delay)
}

func TestBestFromExtendedPicksNarrowestInterval(t *testing.T) {
	ext := &PTPSysOffsetExtended{
		NSamples: 3,
		TS: [ptpMaxSamples][3]PTPClockTime{
			{{Sec: 1667818190, NSec: 552297411}, {Sec: 1667818153, NSec: 552297462}, {Sec: 1667818190, NSec: 552297522}},
			{{Sec: 1667818190, NSec: 552297533}, {Sec: 1667818153, NSec: 552297582}, {Sec: 1667818190, NSec: 552297622}},
			{{Sec: 1667818190, NSec: 552297644}, {Sec: 1667818153, NSec: 552297661}, {Sec: 1667818190, NSec: 552297722}},
		},
	}
	got := bestFromExtended(ext)
	require.Equal(t, time.Duration(78), got.Delay)
	require.Equal(t, time.Unix(0, 1667818190552297683), got.Ts)
	require.Equal(t, time.Duration(37000000022), got.Offset)
}
