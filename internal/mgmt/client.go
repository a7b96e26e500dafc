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

	"golang.org/x/sys/unix"
)

// datasets is the fixed cursor of management datasets a Client cycles
// through on each call to Poll, mirroring run_pmc's ds_ids array.
var datasets = [...]ID{IDPortDataSet, IDTimePropertiesDataSet}

// Client is a non-blocking management client for a locally running PTP
// daemon. Poll must be called repeatedly (typically once per sync engine
// iteration) until it reports the cycle complete.
type Client struct {
	t *transport

	cursor    int
	requested bool

	waitSync     bool
	getUTCOffset bool

	PortLocked    bool
	UTCOffset     int16
	Leap61        bool
	Leap59        bool
	haveTimeProps bool
}

// HaveTimeProperties reports whether TIME_PROPERTIES_DATA_SET has been
// read at least once, so callers can distinguish "no leap pending" from
// "we don't know yet".
func (c *Client) HaveTimeProperties() bool { return c.haveTimeProps }

// Dial connects to the PTP daemon's management socket at address.
func Dial(address string, waitSync, getUTCOffset bool) (*Client, error) {
	t, err := dial(address)
	if err != nil {
		return nil, err
	}
	return &Client{t: t, waitSync: waitSync, getUTCOffset: getUTCOffset}, nil
}

// Close releases the underlying socket.
func (c *Client) Close() error { return c.t.Close() }

func (c *Client) wantID(id ID) bool {
	switch id {
	case IDPortDataSet:
		return c.waitSync
	case IDTimePropertiesDataSet:
		return c.getUTCOffset
	}
	return false
}

func (c *Client) advance() {
	c.cursor++
	c.requested = false
	if c.cursor >= len(datasets) {
		c.cursor = 0
	}
}

// Poll drives one step of the request/response cycle, waiting up to
// timeoutMs milliseconds for the socket to become ready. It returns
// done=true once every requested dataset in the cursor has been read at
// least once since the last full cycle.
func (c *Client) Poll(timeoutMs int) (done bool, err error) {
	// skip datasets the caller doesn't care about
	for !c.wantID(datasets[c.cursor]) {
		c.advance()
		if c.cursor == 0 {
			return true, nil
		}
	}

	fds := []unix.PollFd{{Fd: int32(c.t.Fd()), Events: unix.POLLIN | unix.POLLPRI}}
	if !c.requested {
		fds[0].Events |= unix.POLLOUT
	}

	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		return false, fmt.Errorf("polling management socket: %w", err)
	}
	if n == 0 {
		c.requested = false
		return false, nil
	}

	revents := fds[0].Revents
	haveIn := revents&(unix.POLLIN|unix.POLLPRI) != 0
	haveOut := revents&unix.POLLOUT != 0

	if !haveIn && haveOut {
		if err := c.request(datasets[c.cursor]); err != nil {
			return false, err
		}
		c.requested = true
		return false, nil
	}
	if !haveIn {
		return false, nil
	}

	id, payload, err := c.receive()
	if err != nil {
		return false, err
	}
	if id != datasets[c.cursor] {
		// stale or unrelated reply, drop it and keep waiting
		return false, nil
	}

	switch id {
	case IDPortDataSet:
		pds, err := decodePortDataSet(payload)
		if err != nil {
			return false, err
		}
		if !pds.PortState.Locked() {
			// port not yet in a synchronized state, keep polling it
			return false, nil
		}
		c.PortLocked = true
		c.advance()
	case IDTimePropertiesDataSet:
		tp, err := decodeTimePropertiesDataSet(payload)
		if err != nil {
			return false, err
		}
		c.UTCOffset = tp.CurrentUTCOffset
		c.Leap61 = tp.Leap61
		c.Leap59 = tp.Leap59
		c.haveTimeProps = true
		c.advance()
	}

	return c.cursor == 0, nil
}

func (c *Client) request(id ID) error {
	h := header{Action: ActionGet, ID: id}
	return c.t.send(encodeHeader(h, 0))
}

func (c *Client) receive() (ID, []byte, error) {
	buf := make([]byte, 512)
	n, err := c.t.recv(buf)
	if err != nil {
		return 0, nil, fmt.Errorf("reading management reply: %w", err)
	}
	h, err := decodeHeader(buf[:n])
	if err != nil {
		return 0, nil, err
	}
	if h.Action != ActionResponse {
		return 0, nil, nil
	}
	end := headerSize + int(h.Length)
	if end > n {
		return 0, nil, fmt.Errorf("truncated management reply for id %#x", h.ID)
	}
	return h.ID, buf[headerSize:end], nil
}
