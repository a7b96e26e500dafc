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

// Package hostendian reports the byte order of the running machine.
//
// The management client frames some fields in host byte order and others
// in network byte order over the same local unix socket, so callers need
// both binary.ByteOrder values available at once.
package hostendian

import (
	"encoding/binary"
	"unsafe"
)

// Order is the byte order of this machine.
var Order binary.ByteOrder = binary.LittleEndian

// IsBigEndian reports whether Order is binary.BigEndian.
var IsBigEndian bool

func init() {
	var i uint16 = 0x0100
	ptr := unsafe.Pointer(&i)
	if *(*byte)(ptr) == 0x01 {
		IsBigEndian = true
		Order = binary.BigEndian
	}
}
