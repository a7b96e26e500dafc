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

package leap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tableWithOneInsert(at time.Time) []Second {
	// Second.Time() is Tleap-Nleap+1, so this places the boundary at `at`
	tleap := uint64(at.Unix()) + 36
	return []Second{
		{Tleap: tleap, Nleap: 37},
	}
}

func TestStatusArmsWithinWindowAndClearsAfter(t *testing.T) {
	event := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewTrackerFromTable(tableWithOneInsert(event))

	var syncOffset float64
	require.Equal(t, NoLeap, tracker.Status(event.Add(-48*time.Hour), false, &syncOffset))
	require.Equal(t, Insert, tracker.Status(event.Add(-time.Hour), false, &syncOffset))
	require.Equal(t, NoLeap, tracker.Status(event.Add(time.Second), false, &syncOffset))
	require.Equal(t, 0.0, syncOffset)
}

func TestStatusConsumesAnArmedInsertIntoSyncOffset(t *testing.T) {
	event := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewTrackerFromTable(tableWithOneInsert(event))

	var syncOffset float64
	require.Equal(t, Insert, tracker.Status(event.Add(-time.Hour), false, &syncOffset))
	require.Equal(t, NoLeap, tracker.Status(event.Add(time.Second), true, &syncOffset))
	require.Equal(t, 1.0, syncOffset)

	// once consumed, the flag stays clear and the offset isn't touched again
	require.Equal(t, NoLeap, tracker.Status(event.Add(2*time.Second), false, &syncOffset))
	require.Equal(t, 1.0, syncOffset)
}

func TestStatusConsumesAnArmedDeleteIntoSyncOffset(t *testing.T) {
	event := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	table := []Second{
		{Tleap: uint64(event.Add(-1000*24*time.Hour).Unix()) + 36, Nleap: 37},
		{Tleap: uint64(event.Unix()) + 35, Nleap: 36},
	}
	tracker := NewTrackerFromTable(table)

	var syncOffset float64
	require.Equal(t, Delete, tracker.Status(event.Add(-time.Hour), false, &syncOffset))
	require.Equal(t, NoLeap, tracker.Status(event.Add(time.Second), true, &syncOffset))
	require.Equal(t, -1.0, syncOffset)
}

func TestIsAmbiguousOnlyDuringTheInsertedSecond(t *testing.T) {
	event := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewTrackerFromTable(tableWithOneInsert(event))

	require.False(t, tracker.IsAmbiguous(event.Add(-2*time.Second)))
	require.True(t, tracker.IsAmbiguous(event.Add(-time.Second)))
	require.True(t, tracker.IsAmbiguous(event.Add(-500*time.Millisecond)))
	require.False(t, tracker.IsAmbiguous(event))
}

func TestNoLeapWhenTableIsEmpty(t *testing.T) {
	tracker := NewTrackerFromTable(nil)
	var syncOffset float64
	require.Equal(t, NoLeap, tracker.Status(time.Now(), false, &syncOffset))
	require.False(t, tracker.IsAmbiguous(time.Now()))
}
