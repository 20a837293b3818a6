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

import "errors"

var (
	// ErrNotFound is returned when neither a phone nor a card produced a token
	ErrNotFound = errors.New("no token found")
	// ErrEnrollFailed is returned when a token could not be written to a card
	ErrEnrollFailed = errors.New("token enrollment failed")
	// ErrVerifyMismatch is returned when the read-back differs from the written token
	ErrVerifyMismatch = errors.New("written token does not read back")
)
