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

// Package leap reads the leap second table carried by the system timezone
// database and tracks whether an upcoming leap second should be armed on a
// clock.
package leap

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"time"
)

// defaultTable is the TZif file glibc/tzdata ships with the leap second
// history baked in.
var defaultTable = "/usr/share/zoneinfo/right/UTC"

var errBadData = errors.New("malformed time zone information")
var errUnsupportedVersion = errors.New("unsupported version")
var errNoLeapSeconds = errors.New("no leap seconds information found")

// Second represents one leap second record from a TZif file.
type Second struct {
	Tleap uint64
	Nleap int32
}

type header struct {
	IsUtcCnt uint32
	IsStdCnt uint32
	LeapCnt  uint32
	TimeCnt  uint32
	TypeCnt  uint32
	CharCnt  uint32
}

// Time returns when the leap second event occurs.
func (l Second) Time() time.Time {
	return time.Unix(int64(l.Tleap-uint64(l.Nleap)+1), 0)
}

// Parse returns the list of leap seconds from srcfile. Pass "" to use the
// system default table.
func Parse(srcfile string) ([]Second, error) {
	if srcfile == "" {
		srcfile = defaultTable
	}
	f, err := os.Open(srcfile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseVx(f)
}

// Latest returns the most recent leap second recorded in srcfile that has
// already occurred.
func Latest(srcfile string) (*Second, error) {
	res := Second{}
	seconds, err := Parse(srcfile)
	if err != nil {
		return nil, err
	}

	for _, s := range seconds {
		if s.Time().After(res.Time()) && s.Time().Before(time.Now()) {
			res = s
		}
	}

	return &res, nil
}

func parseVx(r io.Reader) ([]Second, error) {
	var ret []Second
	var v byte
	for v = 0; v < 2; v++ {
		magic := make([]byte, 4)
		if _, _ = r.Read(magic); string(magic) != "TZif" {
			return nil, errBadData
		}

		var version byte
		p := make([]byte, 16)
		if n, _ := r.Read(p); n != 16 {
			return nil, errBadData
		}

		version = p[0]
		if version != 0 && version != '2' && version != '3' {
			return nil, errUnsupportedVersion
		}

		if v > version {
			return nil, errBadData
		}

		var hdr header
		if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
			return nil, err
		}

		var skip int
		if v == 0 {
			skip = int(hdr.TimeCnt)*5 + int(hdr.TypeCnt)*6 + int(hdr.CharCnt)
		} else {
			skip = int(hdr.TimeCnt)*9 + int(hdr.TypeCnt)*6 + int(hdr.CharCnt)
		}

		if v == 0 && version > 0 {
			skip += int(hdr.LeapCnt)*8 + int(hdr.IsUtcCnt) + int(hdr.IsStdCnt)
		}

		if n, _ := io.CopyN(io.Discard, r, int64(skip)); n != int64(skip) {
			return nil, errBadData
		}

		if v == 0 && version > 0 {
			continue
		}

		skip = int(hdr.IsUtcCnt) + int(hdr.IsStdCnt)

		for i := 0; i < int(hdr.LeapCnt); i++ {
			var l Second
			if version == 0 {
				lsv0 := []uint32{0, 0}
				if err := binary.Read(r, binary.BigEndian, &lsv0); err != nil {
					return nil, err
				}
				l.Tleap = uint64(lsv0[0])
				l.Nleap = int32(lsv0[1])
			} else {
				if err := binary.Read(r, binary.BigEndian, &l); err != nil {
					return nil, err
				}
			}
			ret = append(ret, l)
		}
		_, _ = io.CopyN(io.Discard, r, int64(skip))
		break
	}
	if len(ret) == 0 {
		return nil, errNoLeapSeconds
	}

	return ret, nil
}
