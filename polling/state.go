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

package polling

import "time"

// DetectionState is the presence state machine
type DetectionState int

const (
	StateIdle DetectionState = iota
	StateTokenPresent
	StateHandling
)

func (s DetectionState) String() string {
	switch s {
	case StateTokenPresent:
		return "present"
	case StateHandling:
		return "handling"
	default:
		return "idle"
	}
}

// TokenState tracks the token currently in the field
type TokenState struct {
	LastSeenTime   time.Time
	LastKey        string
	DetectionState DetectionState
}

// TransitionToHandling marks key as seen and being handled
func (s *TokenState) TransitionToHandling(key string, now time.Time) {
	s.DetectionState = StateHandling
	s.LastKey = key
	s.LastSeenTime = now
}

// TransitionToPresent marks the handled token as still in the field
func (s *TokenState) TransitionToPresent(now time.Time) {
	s.DetectionState = StateTokenPresent
	s.LastSeenTime = now
}

// TransitionToIdle forgets the last token
func (s *TokenState) TransitionToIdle() {
	s.DetectionState = StateIdle
	s.LastKey = ""
	s.LastSeenTime = time.Time{}
}

// IsRepeat reports whether key is the token already handled and still
// considered present.
func (s *TokenState) IsRepeat(key string) bool {
	return s.DetectionState != StateIdle && s.LastKey == key
}

// Expired reports whether the token has been absent longer than timeout
func (s *TokenState) Expired(now time.Time, timeout time.Duration) bool {
	return s.DetectionState != StateIdle && now.Sub(s.LastSeenTime) > timeout
}
