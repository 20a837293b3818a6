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

package pcsc

import (
	"bytes"
	"fmt"

	"github.com/skythen/apdu"
)

// PC/SC part 3 pseudo-APDUs understood by ACR122U class readers
const (
	claReader     = 0xFF
	insGetData    = 0xCA
	insLoadKey    = 0x82
	insAuth       = 0x86
	insReadBinary = 0xB0
	insUpdate     = 0xD6

	keySlot     = 0x00
	authVersion = 0x01
	mifareKeyA  = 0x60
)

// storageCardRID marks a PC/SC storage card ATR (RID A0 00 00 03 06).
// Such cards only speak MIFARE through the reader, never raw APDUs.
var storageCardRID = []byte{0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06}

func getUIDCommand() []byte {
	return []byte{claReader, insGetData, 0x00, 0x00, 0x00}
}

func loadKeyCommand(key []byte) []byte {
	return append([]byte{claReader, insLoadKey, 0x00, keySlot, byte(len(key))}, key...)
}

func authCommand(block int, keyType byte) []byte {
	return []byte{
		claReader, insAuth, 0x00, 0x00, 0x05,
		authVersion, 0x00, byte(block), mifareKeyA + keyType, keySlot,
	}
}

func readCommand(block int, n int) []byte {
	return []byte{claReader, insReadBinary, 0x00, byte(block), byte(n)}
}

func writeCommand(block int, data []byte) []byte {
	return append([]byte{claReader, insUpdate, 0x00, byte(block), byte(len(data))}, data...)
}

// isStorageCard reports whether atr belongs to a memory card
func isStorageCard(atr []byte) bool {
	return bytes.Contains(atr, storageCardRID)
}

// checkResponse strips the status word from resp and turns anything but
// 90 00 into a *StatusError.
func checkResponse(command string, resp []byte) ([]byte, error) {
	rapdu, err := apdu.ParseRapdu(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	if rapdu.SW1 != 0x90 || rapdu.SW2 != 0x00 {
		return nil, &StatusError{Command: command, SW1: rapdu.SW1, SW2: rapdu.SW2}
	}
	return rapdu.Data, nil
}
