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
	"fmt"
	"os"
	"time"
	"unsafe"

	ioctl "github.com/vtolstov/go-ioctl"
	"golang.org/x/sys/unix"
)

// Missing from x/sys/unix, defined in Linux include/uapi/linux/pps.h.
const ppsMagic = 'p'

type ppsKtime struct {
	Sec   int64
	NSec  int32
	Flags uint32
}

type ppsKinfo struct {
	AssertSequence uint32
	ClearSequence  uint32
	AssertTu       ppsKtime
	ClearTu        ppsKtime
	CurrentMode    int32
}

type ppsFdata struct {
	Info    ppsKinfo
	Timeout ppsKtime
}

// pps.h declares PPS_FETCH with a pointer argument type, so its size field
// is the size of a pointer rather than of struct pps_fdata.
var ioctlPPSFetch = ioctl.IOWR(ppsMagic, 0xa4, unsafe.Sizeof(uintptr(0)))

// PPSSource is an open /dev/pps* character device.
type PPSSource struct {
	file *os.File
}

// OpenPPS opens the PPS source device at path (typically /dev/pps0).
func OpenPPS(path string) (*PPSSource, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening PPS device %s: %w", path, err)
	}
	return &PPSSource{file: f}, nil
}

// Close closes the underlying device file.
func (p *PPSSource) Close() error { return p.file.Close() }

// ReadPPS blocks (up to a 10 second kernel-side timeout) for the next PPS
// assert edge and returns the sub-second offset of that edge along with
// the full timestamp it was captured at. The offset is normalized into
// (-500ms, +500ms], mirroring the reference implementation's read_pps.
func (p *PPSSource) ReadPPS() (Reading, error) {
	req := ppsFdata{Timeout: ppsKtime{Sec: 10}}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, p.file.Fd(), ioctlPPSFetch, uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return Reading{}, fmt.Errorf("PPS_FETCH on %s: %w", p.file.Name(), errno)
	}

	sec := req.Info.AssertTu.Sec
	nsec := int64(req.Info.AssertTu.NSec)
	ts := time.Unix(sec, nsec)

	offsetNs := nsec
	if offsetNs > int64(time.Second/2) {
		offsetNs -= int64(time.Second)
	}

	return Reading{
		Offset: time.Duration(offsetNs),
		Ts:     ts,
	}, nil
}
