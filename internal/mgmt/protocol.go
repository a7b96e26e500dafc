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

// Package mgmt implements a small management client for talking to a
// locally running PTP daemon over its Unix domain management socket, in
// the same spirit as the "pmc" tool: it asks for a couple of well-known
// management datasets and parses just the fields the sync engine cares
// about (port lock state, current UTC offset, pending leap second).
package mgmt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/timekit-io/phc2sys/internal/hostendian"
)

// ID identifies a management dataset, using the managementId values
// assigned by IEEE 1588 Annex D.
type ID uint16

// Datasets this client requests.
const (
	IDPortDataSet           ID = 0x2004
	IDTimePropertiesDataSet ID = 0x2003
)

// Action is the actionField of a management message.
type Action uint8

// Actions this client uses.
const (
	ActionGet      Action = 0
	ActionResponse Action = 2
)

// header frames every message this client exchanges. It mixes a
// wire-standard big-endian ID (so a real PTP daemon on the other end
// recognizes it) with a host-endian length prefix, since the length is
// consumed only locally and never crosses to another host.
type header struct {
	Action Action
	_      [1]byte
	ID     ID
	Length uint16
}

const headerSize = 6

func encodeHeader(h header, payloadLen int) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(h.Action))
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, uint16(h.ID))
	_ = binary.Write(buf, hostendian.Order, uint16(payloadLen))
	return buf.Bytes()
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < headerSize {
		return header{}, fmt.Errorf("short management header: %d bytes", len(b))
	}
	var h header
	h.Action = Action(b[0])
	h.ID = ID(binary.BigEndian.Uint16(b[2:4]))
	h.Length = hostendian.Order.Uint16(b[4:6])
	return h, nil
}

// PortState mirrors the portState field of PORT_DATA_SET.
type PortState uint8

// States relevant to sync decisions.
const (
	PortStateInitializing PortState = 1
	PortStateFaulty       PortState = 2
	PortStateDisabled     PortState = 3
	PortStateListening    PortState = 4
	PortStatePreMaster    PortState = 5
	PortStateMaster       PortState = 6
	PortStatePassive      PortState = 7
	PortStateUncalibrated PortState = 8
	PortStateSlave        PortState = 9
)

// Locked reports whether a port in this state is actively synchronized to
// (or providing sync for) the PTP domain.
func (s PortState) Locked() bool {
	return s == PortStateMaster || s == PortStateSlave
}

// PortDataSet is the subset of PORT_DATA_SET this client parses.
type PortDataSet struct {
	PortState PortState
}

func encodePortDataSet(v PortDataSet) []byte {
	return []byte{byte(v.PortState)}
}

func decodePortDataSet(b []byte) (PortDataSet, error) {
	if len(b) < 1 {
		return PortDataSet{}, fmt.Errorf("short PORT_DATA_SET payload")
	}
	return PortDataSet{PortState: PortState(b[0])}, nil
}

// leap flag bits within TimePropertiesDataSet's flag byte, per IEEE 1588.
const (
	flagLeap61 byte = 1 << 0
	flagLeap59 byte = 1 << 1
)

// TimePropertiesDataSet is the subset of TIME_PROPERTIES_DATA_SET this
// client parses.
type TimePropertiesDataSet struct {
	CurrentUTCOffset int16
	Leap61           bool
	Leap59           bool
}

func encodeTimePropertiesDataSet(v TimePropertiesDataSet) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, v.CurrentUTCOffset)
	var flags byte
	if v.Leap61 {
		flags |= flagLeap61
	}
	if v.Leap59 {
		flags |= flagLeap59
	}
	buf.WriteByte(flags)
	return buf.Bytes()
}

func decodeTimePropertiesDataSet(b []byte) (TimePropertiesDataSet, error) {
	if len(b) < 3 {
		return TimePropertiesDataSet{}, fmt.Errorf("short TIME_PROPERTIES_DATA_SET payload")
	}
	offset := int16(binary.BigEndian.Uint16(b[0:2]))
	flags := b[2]
	return TimePropertiesDataSet{
		CurrentUTCOffset: offset,
		Leap61:           flags&flagLeap61 != 0,
		Leap59:           flags&flagLeap59 != 0,
	}, nil
}
