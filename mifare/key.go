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

package mifare

import "fmt"

// KeySize is the length of a MIFARE Classic key
const KeySize = 6

// Key types. The PN532 auth command is 0x60 + key type.
const (
	KeyA byte = 0x00
	KeyB byte = 0x01
)

// Key is a 6-byte sector key
type Key [KeySize]byte

// FactoryKey is the transport key blank tags ship with. It is used for
// both key A and key B.
var FactoryKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// KeyFromBytes copies b into a Key.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("MIFARE key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Bytes returns a copy of the key. Callers should zero it when done.
func (k Key) Bytes() []byte {
	b := make([]byte, KeySize)
	copy(b, k[:])
	return b
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// KeyTypeName returns "A" or "B".
func KeyTypeName(keyType byte) string {
	if keyType == KeyB {
		return "B"
	}
	return "A"
}
