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

package doorterm

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenSize is the length of a token, one MIFARE block
const TokenSize = 16

// placeholderPrefix marks cards that were never enrolled
var placeholderPrefix = []byte("Tokens")

// Token is an opaque 16-byte credential
type Token [TokenSize]byte

// TokenFromBytes copies the first 16 bytes of b into a Token
func TokenFromBytes(b []byte) (Token, error) {
	var t Token
	if len(b) < TokenSize {
		return t, fmt.Errorf("token needs %d bytes, got %d", TokenSize, len(b))
	}
	copy(t[:], b)
	return t, nil
}

// Bytes returns a copy of the token
func (t Token) Bytes() []byte {
	return append([]byte(nil), t[:]...)
}

// String returns the token as the server sees it: the raw bytes as text
func (t Token) String() string {
	return string(t[:])
}

// Hex returns the token as upper-case hex
func (t Token) Hex() string {
	return strings.ToUpper(hex.EncodeToString(t[:]))
}

// IsZero reports whether every byte is zero
func (t Token) IsZero() bool {
	return t == Token{}
}

// IsBlank reports whether the token is all zero or the unenrolled
// placeholder text.
func (t Token) IsBlank() bool {
	return t.IsZero() || bytes.HasPrefix(t[:], placeholderPrefix)
}

// DeviceKind says where a token came from
type DeviceKind string

// Device kinds, as sent to the server
const (
	DevicePhone DeviceKind = "phone"
	DeviceCard  DeviceKind = "card"
)

// Acquisition is the result of a successful AcquireToken
type Acquisition struct {
	Device DeviceKind
	UID    []byte
	Token  Token
}

// IsBlank reports whether the acquired token is unenrolled
func (a Acquisition) IsBlank() bool {
	return a.Token.IsBlank()
}

// FormatHexASCII renders data as a hex line and an ASCII line, with
// non-printable bytes shown as '.'.
func FormatHexASCII(data []byte) string {
	var b strings.Builder
	b.WriteString("Hex:")
	for _, c := range data {
		fmt.Fprintf(&b, " 0x%02X", c)
	}
	b.WriteString("\nASCII: ")
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
