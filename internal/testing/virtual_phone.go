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

package testing

import "bytes"

// Status words returned by the virtual phone
var (
	SWFileNotFound = []byte{0x6A, 0x82}
	SWWrongLength  = []byte{0x67, 0x00}
)

// VirtualPhone is a phone emulating an ISO14443-4 application. A SELECT
// by name of AID is answered with Response; anything else gets a status
// word.
type VirtualPhone struct {
	UID      []byte
	AID      []byte
	Response []byte
	Present  bool
	// Commands records every APDU received
	Commands [][]byte
}

// NewVirtualPhone creates a present phone serving response for aid
func NewVirtualPhone(aid, response []byte) *VirtualPhone {
	return &VirtualPhone{
		UID:      append([]byte(nil), TestPhoneUID...),
		AID:      append([]byte(nil), aid...),
		Response: append([]byte(nil), response...),
		Present:  true,
	}
}

// Transceive handles one command APDU
func (p *VirtualPhone) Transceive(apdu []byte) []byte {
	p.Commands = append(p.Commands, append([]byte(nil), apdu...))
	if len(apdu) < 5 {
		return SWWrongLength
	}
	if apdu[1] != 0xA4 || apdu[2] != 0x04 {
		return SWFileNotFound
	}
	lc := int(apdu[4])
	if len(apdu) < 5+lc || !bytes.Equal(apdu[5:5+lc], p.AID) {
		return SWFileNotFound
	}
	return append([]byte(nil), p.Response...)
}
