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

package pn532

import (
	"fmt"
	"time"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithRetryConfig sets the retry configuration used by InitContext
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.SetRetryConfig(config)
		return nil
	}
}

// WithTimeout sets the transport timeout for a single command
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		return d.SetTimeout(timeout)
	}
}

// WithInitAttempts bounds the number of firmware detection attempts
func WithInitAttempts(attempts int) Option {
	return func(d *Device) error {
		if attempts < 1 {
			return fmt.Errorf("%w: init attempts must be positive", ErrInvalidParameter)
		}
		if d.config.RetryConfig == nil {
			d.config.RetryConfig = DefaultRetryConfig()
		}
		d.config.RetryConfig.MaxAttempts = attempts
		return nil
	}
}

// WithDiscoveryTimeout sets the default card discovery timeout
func WithDiscoveryTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		d.config.DiscoveryTimeout = timeout
		return nil
	}
}

// WithPeerPolling sets the phone discovery poll interval and attempt count
func WithPeerPolling(interval time.Duration, attempts int) Option {
	return func(d *Device) error {
		if attempts < 1 {
			return fmt.Errorf("%w: peer poll attempts must be positive", ErrInvalidParameter)
		}
		d.config.PeerPollInterval = interval
		d.config.PeerPollAttempts = attempts
		return nil
	}
}

// WithDiscoveryInterval sets the pause between card discovery polls
func WithDiscoveryInterval(interval time.Duration) Option {
	return func(d *Device) error {
		d.config.DiscoveryInterval = interval
		return nil
	}
}
