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

	"golang.org/x/sys/unix"

	"github.com/timekit-io/phc2sys/internal/clockadj"
)

// DefaultMaxClockFreqPPB is the frequency range assumed for a PHC that
// doesn't report PTP_CLOCK_GETCAPS, taken from linuxptp's clockadj.c.
const DefaultMaxClockFreqPPB = 500000.0

// clockfd is the magic file descriptor bit pattern the kernel uses to turn
// an open file descriptor into a dynamic clockid_t. See
// FD_TO_CLOCKID/CLOCKFD in linux/time.h.
const clockfd = 3

// FDToClockID converts an open PHC file descriptor into the dynamic
// clockid_t the clock_* syscalls expect.
func FDToClockID(fd uintptr) int32 {
	return int32((^int(fd) << 3) | clockfd)
}

// Device is an open PTP hardware clock character device.
type Device struct {
	file *os.File
}

// Open opens the PHC device at path.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening PHC device %s: %w", path, err)
	}
	return &Device{file: f}, nil
}

// File returns the underlying open file.
func (d *Device) File() *os.File { return d.file }

// Close closes the underlying device file.
func (d *Device) Close() error { return d.file.Close() }

// ClockID returns the dynamic clockid_t for this device.
func (d *Device) ClockID() int32 { return FDToClockID(d.file.Fd()) }

// Time reads the device's current time via clock_gettime.
func (d *Device) Time() (time.Time, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(d.ClockID(), &ts); err != nil {
		return time.Time{}, fmt.Errorf("clock_gettime on %s: %w", d.file.Name(), err)
	}
	return time.Unix(ts.Unix()), nil
}

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// ReadSysoffExtended issues PTP_SYS_OFFSET_EXTENDED, asking the kernel for
// nSamples bracketed (sys, phc, sys) readings.
func (d *Device) ReadSysoffExtended(nSamples uint32) (*PTPSysOffsetExtended, error) {
	if nSamples == 0 || nSamples > ptpMaxSamples {
		return nil, fmt.Errorf("nSamples must be in [1,%d]", ptpMaxSamples)
	}
	req := &PTPSysOffsetExtended{NSamples: nSamples}
	if err := d.ioctl(ioctlPTPSysOffsetExtended, unsafe.Pointer(req)); err != nil {
		return nil, fmt.Errorf("PTP_SYS_OFFSET_EXTENDED on %s: %w", d.file.Name(), err)
	}
	return req, nil
}

// ReadSysoffPrecise issues PTP_SYS_OFFSET_PRECISE, which relies on the NIC
// supporting cross-timestamping directly in hardware.
func (d *Device) ReadSysoffPrecise() (*PTPSysOffsetPrecise, error) {
	req := &PTPSysOffsetPrecise{}
	if err := d.ioctl(ioctlPTPSysOffsetPrecise, unsafe.Pointer(req)); err != nil {
		return nil, fmt.Errorf("PTP_SYS_OFFSET_PRECISE on %s: %w", d.file.Name(), err)
	}
	return req, nil
}

// Caps reads the device's reported capabilities via PTP_CLOCK_GETCAPS.
func (d *Device) Caps() (*PTPClockCaps, error) {
	caps := &PTPClockCaps{}
	if err := d.ioctl(ioctlPTPClockGetcaps, unsafe.Pointer(caps)); err != nil {
		return nil, fmt.Errorf("PTP_CLOCK_GETCAPS on %s: %w", d.file.Name(), err)
	}
	return caps, nil
}

// MaxFreqPPB returns the frequency adjustment range supported by the
// device, falling back to DefaultMaxClockFreqPPB if the kernel doesn't
// report one.
func (d *Device) MaxFreqPPB() float64 {
	caps, err := d.Caps()
	if err != nil {
		return DefaultMaxClockFreqPPB
	}
	return caps.maxAdj()
}

// FrequencyPPB reads the device's current frequency offset in PPB.
func (d *Device) FrequencyPPB() (float64, error) {
	freqPPB, state, err := clockadj.FrequencyPPB(d.ClockID())
	if err == nil && state != unix.TIME_OK {
		return freqPPB, fmt.Errorf("clock %q state %d is not TIME_OK", d.file.Name(), state)
	}
	return freqPPB, err
}

// AdjFreqPPB sets the device's frequency offset in PPB.
func (d *Device) AdjFreqPPB(freqPPB float64) error {
	state, err := clockadj.AdjFreqPPB(d.ClockID(), freqPPB)
	if err == nil && state != unix.TIME_OK {
		return fmt.Errorf("clock %q state %d is not TIME_OK", d.file.Name(), state)
	}
	return err
}

// Step steps the device's clock by the given duration.
func (d *Device) Step(step time.Duration) error {
	state, err := clockadj.Step(d.ClockID(), step)
	if err == nil && state != unix.TIME_OK {
		return fmt.Errorf("clock %q state %d is not TIME_OK", d.file.Name(), state)
	}
	return err
}

// SetLeap arms or clears a pending leap second on the device. It is only
// meaningful when the device is CLOCK_REALTIME.
func (d *Device) SetLeap(dir int) error {
	_, err := clockadj.SetLeap(d.ClockID(), dir)
	return err
}
