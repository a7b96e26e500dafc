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
	"path"
)

// transport is a datagram connection to a PTP daemon's local management
// socket, bound to an ephemeral local socket path so the daemon can send
// its replies back.
type transport struct {
	conn      *net.UnixConn
	localPath string
	dupFile   *os.File
}

func dial(address string) (*transport, error) {
	if address == "" {
		return nil, fmt.Errorf("management socket address is empty")
	}
	base, _ := path.Split(address)
	local := path.Join(base, fmt.Sprintf("phc2sys.%d.sock", os.Getpid()))

	remoteAddr, err := net.ResolveUnixAddr("unixgram", address)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", address, err)
	}
	localAddr, err := net.ResolveUnixAddr("unixgram", local)
	if err != nil {
		return nil, fmt.Errorf("resolving local socket %s: %w", local, err)
	}
	conn, err := net.DialUnix("unixgram", localAddr, remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	if err := os.Chmod(local, 0666); err != nil {
		conn.Close()
		os.RemoveAll(local)
		return nil, fmt.Errorf("chmod %s: %w", local, err)
	}
	dupFile, err := conn.File()
	if err != nil {
		conn.Close()
		os.RemoveAll(local)
		return nil, fmt.Errorf("getting socket fd for %s: %w", address, err)
	}
	return &transport{conn: conn, localPath: local, dupFile: dupFile}, nil
}

// Fd returns a duplicated socket file descriptor valid for the lifetime of
// this transport, for use with poll(2). Duplicating (rather than using the
// net.UnixConn's fd directly) puts the descriptor into blocking mode,
// which is what a raw poll loop expects.
func (t *transport) Fd() uintptr {
	return t.dupFile.Fd()
}

func (t *transport) send(b []byte) error {
	_, err := t.conn.Write(b)
	return err
}

func (t *transport) recv(buf []byte) (int, error) {
	return t.conn.Read(buf)
}

func (t *transport) Close() error {
	err := t.conn.Close()
	if closeErr := t.dupFile.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if rmErr := os.RemoveAll(t.localPath); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}
