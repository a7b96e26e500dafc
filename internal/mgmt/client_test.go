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
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDaemon answers a Client's GET requests the way a locally running PTP
// daemon would, for exactly the two datasets this package requests.
func fakeDaemon(t *testing.T, addr string, portState PortState, tp TimePropertiesDataSet) (*net.UnixConn, func()) {
	t.Helper()
	os.Remove(addr)
	laddr, err := net.ResolveUnixAddr("unixgram", addr)
	require.NoError(t, err)
	conn, err := net.ListenUnixgram("unixgram", laddr)
	require.NoError(t, err)

	stop := make(chan struct{})
	go func() {
		buf := make([]byte, 512)
		for {
			select {
			case <-stop:
				return
			default:
			}
			conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
			n, raddr, err := conn.ReadFromUnix(buf)
			if err != nil {
				continue
			}
			h, err := decodeHeader(buf[:n])
			if err != nil || h.Action != ActionGet {
				continue
			}
			var payload []byte
			switch h.ID {
			case IDPortDataSet:
				payload = encodePortDataSet(PortDataSet{PortState: portState})
			case IDTimePropertiesDataSet:
				payload = encodeTimePropertiesDataSet(tp)
			default:
				continue
			}
			resp := encodeHeader(header{Action: ActionResponse, ID: h.ID}, len(payload))
			resp = append(resp, payload...)
			_, _ = conn.WriteToUnix(resp, raddr)
		}
	}()

	return conn, func() {
		close(stop)
		conn.Close()
		os.Remove(addr)
	}
}

func TestClientLearnsPortLockAndUTCOffset(t *testing.T) {
	dir := t.TempDir()
	addr := filepath.Join(dir, "ptp4l.sock")

	_, stop := fakeDaemon(t, addr, PortStateSlave, TimePropertiesDataSet{CurrentUTCOffset: 37})
	defer stop()

	c, err := Dial(addr, true, true)
	require.NoError(t, err)
	defer c.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		done, err := c.Poll(200)
		require.NoError(t, err)
		if done {
			break
		}
	}

	require.True(t, c.PortLocked)
	require.True(t, c.HaveTimeProperties())
	require.EqualValues(t, 37, c.UTCOffset)
	require.False(t, c.Leap61)
	require.False(t, c.Leap59)
}

func TestClientWaitsForPortToLock(t *testing.T) {
	dir := t.TempDir()
	addr := filepath.Join(dir, "ptp4l.sock")

	_, stop := fakeDaemon(t, addr, PortStateListening, TimePropertiesDataSet{CurrentUTCOffset: 37})
	defer stop()

	c, err := Dial(addr, true, false)
	require.NoError(t, err)
	defer c.Close()

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		done, err := c.Poll(100)
		require.NoError(t, err)
		if done {
			t.Fatal("did not expect cycle to complete while port is listening")
		}
	}
	require.False(t, c.PortLocked)
}

func TestDialRejectsEmptyAddress(t *testing.T) {
	_, err := Dial("", true, true)
	require.Error(t, err)
}

func TestFakeDaemonAddrUnique(t *testing.T) {
	// sanity check the helper produces a usable, collision-free path
	dir := t.TempDir()
	addr := filepath.Join(dir, fmt.Sprintf("ptp4l-%d.sock", os.Getpid()))
	_, stop := fakeDaemon(t, addr, PortStateSlave, TimePropertiesDataSet{})
	defer stop()
	_, err := os.Stat(addr)
	require.NoError(t, err)
}
