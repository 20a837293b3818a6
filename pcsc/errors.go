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
	"errors"
	"fmt"
)

var (
	// ErrNoReader is returned when the PC/SC service lists no readers
	ErrNoReader = errors.New("no PC/SC readers found")
	// ErrNoTargetDetected is returned when no card arrived before the deadline
	ErrNoTargetDetected = errors.New("no card detected")
	// ErrNoTarget is returned when an operation needs a connected card
	ErrNoTarget = errors.New("no card connected")
	// ErrNotExchangeCapable is returned when the card is a plain storage card
	ErrNotExchangeCapable = errors.New("card does not support APDU exchange")
	// ErrAuthRejected is returned when the reader refuses the MIFARE key
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrNotAuthenticated is returned for blocks outside the authenticated sector
	ErrNotAuthenticated = errors.New("sector not authenticated")
	// ErrInvalidParameter is returned for malformed block, key or data arguments
	ErrInvalidParameter = errors.New("invalid parameter")
)

// StatusError is a response whose status word is not 90 00
type StatusError struct {
	Command string
	SW1     byte
	SW2     byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: SW=%02X%02X", e.Command, e.SW1, e.SW2)
}
