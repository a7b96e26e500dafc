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

// Package phc talks to Linux PTP hardware clock (/dev/ptp*) devices: it
// discovers the PHC backing a network interface, reads clock offsets
// through the kernel's cross-timestamping ioctls, and disciplines the
// clock's frequency.
package phc

import (
	"fmt"
	"net"
	"time"
	"unsafe"

	ioctl "github.com/vtolstov/go-ioctl"
	"golang.org/x/sys/unix"
)

// Missing from x/sys/unix, defined in Linux include/uapi/linux/ptp_clock.h.
const (
	ptpMaxSamples = 25
	ptpClkMagic   = '='
)

var ioctlPTPSysOffsetExtended = ioctl.IOWR(ptpClkMagic, 9, unsafe.Sizeof(PTPSysOffsetExtended{}))
var ioctlPTPSysOffsetPrecise = ioctl.IOWR(ptpClkMagic, 8, unsafe.Sizeof(PTPSysOffsetPrecise{}))
var ioctlPTPClockGetcaps = ioctl.IOR(ptpClkMagic, 1, unsafe.Sizeof(PTPClockCaps{}))

// EthtoolTSinfo holds a device's timestamping and PHC association, as per
// Linux kernel's include/uapi/linux/ethtool.h.
type EthtoolTSinfo struct {
	Cmd            uint32
	SOtimestamping uint32
	PHCIndex       int32
	TXTypes        uint32
	TXReserved     [3]uint32
	RXFilters      uint32
	RXReserved     [3]uint32
}

type ifreq struct {
	Name [unix.IFNAMSIZ]byte
	Data uintptr
}

// PTPClockTime mirrors struct ptp_clock_time from linux/ptp_clock.h.
type PTPClockTime struct {
	Sec      int64
	NSec     uint32
	Reserved uint32
}

// Time converts a PTPClockTime into a time.Time.
func (t PTPClockTime) Time() time.Time {
	return time.Unix(t.Sec, int64(t.NSec))
}

// PTPSysOffsetExtended mirrors struct ptp_sys_offset_extended.
type PTPSysOffsetExtended struct {
	NSamples uint32
	Reserved [3]uint32
	TS       [ptpMaxSamples][3]PTPClockTime
}

// PTPSysOffsetPrecise mirrors struct ptp_sys_offset_precise.
type PTPSysOffsetPrecise struct {
	Device      PTPClockTime
	SysRealTime PTPClockTime
	SysMonoRaw  PTPClockTime
	Reserved    [4]uint32
}

// PTPClockCaps mirrors struct ptp_clock_caps.
type PTPClockCaps struct {
	MaxAdj            int32
	NAlarm            int32
	NExtTs            int32
	NPerOut           int32
	PPS               int32
	NPins             int32
	CrossTimestamping int32
	AdjustPhase       int32
	Rsv               [12]int32
}

func (caps *PTPClockCaps) maxAdj() float64 {
	if caps == nil || caps.MaxAdj == 0 {
		return DefaultMaxClockFreqPPB
	}
	return float64(caps.MaxAdj)
}

// IfaceInfo uses the SIOCETHTOOL ioctl to fetch ethtool timestamping info
// for a given network interface.
func IfaceInfo(iface string) (*EthtoolTSinfo, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket for ioctl: %w", err)
	}
	defer unix.Close(fd)
	data := &EthtoolTSinfo{Cmd: unix.ETHTOOL_GET_TS_INFO}
	req := &ifreq{}
	copy(req.Name[:unix.IFNAMSIZ-1], iface)
	req.Data = uintptr(unsafe.Pointer(data))
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL, uintptr(fd),
		uintptr(unix.SIOCETHTOOL),
		uintptr(unsafe.Pointer(req)),
	)
	if errno != 0 {
		return nil, fmt.Errorf("failed to get PHC index for %s: %w", iface, errno)
	}
	return data, nil
}

// ifaceData bundles a net.Interface with its EthtoolTSinfo.
type ifaceData struct {
	Iface  net.Interface
	TSInfo EthtoolTSinfo
}

func ifacesInfo() ([]ifaceData, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	res := make([]ifaceData, 0, len(ifaces))
	for _, iface := range ifaces {
		data, err := IfaceInfo(iface.Name)
		if err != nil {
			continue
		}
		res = append(res, ifaceData{Iface: iface, TSInfo: *data})
	}
	return res, nil
}

// DeviceFromIface returns the /dev/ptpN path of the PHC backing the given
// network interface, or an error if the interface has no PHC.
func DeviceFromIface(iface string) (string, error) {
	ifaces, err := ifacesInfo()
	if err != nil {
		return "", err
	}
	for _, d := range ifaces {
		if d.Iface.Name == iface {
			if d.TSInfo.PHCIndex < 0 {
				return "", fmt.Errorf("no PHC support for %s", iface)
			}
			return fmt.Sprintf("/dev/ptp%d", d.TSInfo.PHCIndex), nil
		}
	}
	return "", fmt.Errorf("%s interface not found", iface)
}
