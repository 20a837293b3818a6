// doorterm
// Copyright (c) 2025 The doorterm Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of doorterm.
//
// doorterm is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// doorterm is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with doorterm; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package frame

import (
	"bytes"
	"errors"
	"fmt"
)

// Frame errors
var (
	ErrNoFrame          = errors.New("no frame start code found")
	ErrIncomplete       = errors.New("incomplete frame")
	ErrLengthChecksum   = errors.New("frame length checksum mismatch")
	ErrDataChecksum     = errors.New("frame data checksum mismatch")
	ErrUnexpectedTFI    = errors.New("unexpected frame identifier")
	ErrApplicationError = errors.New("PN532 returned an application error frame")
	ErrTooLarge         = errors.New("frame data too large")
)

// CalculateChecksum returns the modulo-256 sum of data.
func CalculateChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// ValidateChecksum returns true when data (payload plus checksum byte) does
// NOT sum to zero, i.e. when the frame must be NACKed.
func ValidateChecksum(data []byte) bool {
	return CalculateChecksum(data) != 0
}

// CalculateDataChecksum returns the DCS for a frame with the given TFI and data.
func CalculateDataChecksum(tfi byte, data []byte) byte {
	return ^(tfi+CalculateChecksum(data)) + 1
}

// CalculateLengthChecksum returns the LCS for length.
func CalculateLengthChecksum(length byte) byte {
	return ^length + 1
}

// Build encodes a host-to-PN532 normal information frame.
func Build(cmd byte, args []byte) ([]byte, error) {
	if len(args) > MaxArgs {
		return nil, fmt.Errorf("%w: %d argument bytes (max %d)", ErrTooLarge, len(args), MaxArgs)
	}
	length := byte(len(args) + 2)
	data := make([]byte, 0, len(args)+1)
	data = append(data, cmd)
	data = append(data, args...)

	out := make([]byte, 0, len(args)+9)
	out = append(out, Preamble, StartCode1, StartCode2, length, CalculateLengthChecksum(length), HostToPn532)
	out = append(out, data...)
	out = append(out, CalculateDataChecksum(HostToPn532, data), Postamble)
	return out, nil
}

// IsACK reports whether buf contains an ACK frame.
func IsACK(buf []byte) bool {
	return bytes.Contains(buf, AckFrame[1:5])
}

// IsNACK reports whether buf contains a NACK frame.
func IsNACK(buf []byte) bool {
	return bytes.Contains(buf, NackFrame[1:5])
}

// Parse finds the first PN532-to-host information frame in buf. It returns
// the frame data without the TFI (command code first) and the number of
// bytes of buf consumed. ACK and NACK frames in front of it are skipped.
//
// ErrIncomplete and ErrNoFrame mean more bytes are needed; every other
// error means the frame is corrupt and should be NACKed.
func Parse(buf []byte) (data []byte, consumed int, err error) {
	return parse(buf, Pn532ToHost)
}

// ParseCommand is Parse for host-to-PN532 frames, as seen by a device.
func ParseCommand(buf []byte) (data []byte, consumed int, err error) {
	return parse(buf, HostToPn532)
}

// ResponseFrame encodes data (response code first) as a PN532-to-host frame.
func ResponseFrame(data []byte) []byte {
	length := byte(len(data) + 1)
	out := make([]byte, 0, len(data)+8)
	out = append(out, Preamble, StartCode1, StartCode2, length, CalculateLengthChecksum(length), Pn532ToHost)
	out = append(out, data...)
	return append(out, CalculateDataChecksum(Pn532ToHost, data), Postamble)
}

func parse(buf []byte, tfi byte) (data []byte, consumed int, err error) {
	offset := 0
	for {
		idx := bytes.Index(buf[offset:], []byte{StartCode1, StartCode2})
		if idx < 0 {
			return nil, 0, ErrNoFrame
		}
		start := offset + idx + 2
		if len(buf) < start+2 {
			return nil, 0, ErrIncomplete
		}
		length, lcs := buf[start], buf[start+1]

		switch {
		case length == 0x00 && lcs == 0xFF, length == 0xFF && lcs == 0x00:
			offset = start + 2
			continue
		case length+lcs != 0:
			return nil, 0, ErrLengthChecksum
		}

		body := start + 2
		if len(buf) < body+int(length)+1 {
			return nil, 0, ErrIncomplete
		}
		payload := buf[body : body+int(length)]
		dcs := buf[body+int(length)]

		if length == 1 && payload[0] == errorTFI {
			return nil, 0, ErrApplicationError
		}
		if CalculateChecksum(payload)+dcs != 0 {
			return nil, 0, ErrDataChecksum
		}
		if payload[0] != tfi {
			return nil, 0, fmt.Errorf("%w: 0x%02X", ErrUnexpectedTFI, payload[0])
		}

		consumed = body + int(length) + 1
		if consumed < len(buf) && buf[consumed] == Postamble {
			consumed++
		}
		out := make([]byte, len(payload)-1)
		copy(out, payload[1:])
		return out, consumed, nil
	}
}
