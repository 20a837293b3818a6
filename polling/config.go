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

// Package polling watches the reader field and reports each token once
// while it stays presented.
package polling

import (
	"errors"
	"time"
)

// Config holds the presence loop timings
type Config struct {
	// PollInterval is the pause between acquisitions while tokens come and go
	PollInterval time.Duration
	// IdleInterval is used after IdleAfter without any token
	IdleInterval time.Duration
	IdleAfter    time.Duration
	// AcquireTimeout bounds each acquisition
	AcquireTimeout time.Duration
	// CardRemovalTimeout is how long a token must be absent before the
	// same token is reported again
	CardRemovalTimeout time.Duration
}

// DefaultConfig returns the terminal defaults
func DefaultConfig() *Config {
	return &Config{
		PollInterval:       100 * time.Millisecond,
		IdleInterval:       500 * time.Millisecond,
		IdleAfter:          5 * time.Second,
		AcquireTimeout:     time.Second,
		CardRemovalTimeout: time.Second,
	}
}

// ErrInvalidConfig is returned for non-positive timings
var ErrInvalidConfig = errors.New("invalid polling config")

// Validate checks that every timing is positive
func (c *Config) Validate() error {
	if c.PollInterval <= 0 || c.IdleInterval <= 0 || c.AcquireTimeout <= 0 || c.CardRemovalTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
