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

// Package testing provides virtual tags and a PN532 command simulator for
// tests. Responses are shaped like a transport returns them: response code
// first, no TFI.
package testing

// Command bytes for reference
const (
	CmdGetFirmwareVersion  = 0x02
	CmdSAMConfiguration    = 0x14
	CmdRFConfiguration     = 0x32
	CmdInDataExchange      = 0x40
	CmdInListPassiveTarget = 0x4A
	CmdInRelease           = 0x52
)

// PN532 status codes used by the simulator
const (
	StatusOK         = 0x00
	StatusTimeout    = 0x01
	StatusMifareAuth = 0x14
	StatusBadParam   = 0x27
)

// SAK values
const (
	SAKMifare1K = 0x08
	SAKMifare4K = 0x18
	SAKISO4     = 0x20
)

// Common UIDs for testing
var (
	TestMIFARE1KUID = []byte{0x12, 0x34, 0x56, 0x78}
	TestMIFARE4KUID = []byte{0xAB, 0xCD, 0xEF, 0x01}
	TestMIFARE7UID  = []byte{0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56}
	TestPhoneUID    = []byte{0x08, 0x1F, 0x2E, 0x3D}
)

// BuildFirmwareVersionResponse creates a GetFirmwareVersion response for
// a PN532 with firmware 1.6
func BuildFirmwareVersionResponse() []byte {
	return []byte{0x03, 0x32, 0x01, 0x06, 0x07}
}

// BuildSAMConfigurationResponse creates a SAMConfiguration response
func BuildSAMConfigurationResponse() []byte {
	return []byte{0x15}
}

// BuildRFConfigurationResponse creates an RFConfiguration response
func BuildRFConfigurationResponse() []byte {
	return []byte{0x33}
}

// BuildReleaseResponse creates a successful InRelease response
func BuildReleaseResponse() []byte {
	return []byte{0x53, StatusOK}
}

// BuildTargetResponse creates an InListPassiveTarget response with one
// type A target
func BuildTargetResponse(sak byte, uid []byte) []byte {
	response := []byte{0x4B, 0x01, 0x01, 0x00, 0x04, sak, byte(len(uid))}
	response = append(response, uid...)
	if sak&SAKISO4 != 0 {
		// minimal ATS: TL, T0
		response = append(response, 0x02, 0x00)
	}
	return response
}

// BuildNoTagResponse creates an empty InListPassiveTarget response
func BuildNoTagResponse() []byte {
	return []byte{0x4B, 0x00}
}

// BuildDataExchangeResponse creates a successful InDataExchange response
func BuildDataExchangeResponse(data []byte) []byte {
	response := []byte{0x41, StatusOK}
	return append(response, data...)
}

// BuildErrorResponse creates a status-only response for cmd
func BuildErrorResponse(cmd, errorCode byte) []byte {
	return []byte{cmd + 1, errorCode}
}
