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

package mgmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	encoded := encodeHeader(header{Action: ActionGet, ID: IDPortDataSet}, 4)
	got, err := decodeHeader(encoded)
	require.NoError(t, err)
	require.Equal(t, ActionGet, got.Action)
	require.Equal(t, IDPortDataSet, got.ID)
	require.EqualValues(t, 4, got.Length)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := decodeHeader([]byte{0, 0, 0})
	require.Error(t, err)
}

func TestPortStateLocked(t *testing.T) {
	require.True(t, PortStateMaster.Locked())
	require.True(t, PortStateSlave.Locked())
	require.False(t, PortStateListening.Locked())
	require.False(t, PortStateFaulty.Locked())
}

func TestPortDataSetRoundTrip(t *testing.T) {
	got, err := decodePortDataSet(encodePortDataSet(PortDataSet{PortState: PortStateSlave}))
	require.NoError(t, err)
	require.Equal(t, PortStateSlave, got.PortState)
}

func TestTimePropertiesDataSetRoundTrip(t *testing.T) {
	in := TimePropertiesDataSet{CurrentUTCOffset: 37, Leap61: true}
	got, err := decodeTimePropertiesDataSet(encodeTimePropertiesDataSet(in))
	require.NoError(t, err)
	require.Equal(t, in, got)
}

func TestTimePropertiesDataSetNegativeOffset(t *testing.T) {
	in := TimePropertiesDataSet{CurrentUTCOffset: -1, Leap59: true}
	got, err := decodeTimePropertiesDataSet(encodeTimePropertiesDataSet(in))
	require.NoError(t, err)
	require.Equal(t, in, got)
}

func TestDecodeTimePropertiesDataSetRejectsShortBuffer(t *testing.T) {
	_, err := decodeTimePropertiesDataSet([]byte{0, 1})
	require.Error(t, err)
}
