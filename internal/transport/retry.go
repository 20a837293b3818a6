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

// Package transport holds the receive loops shared by the PN532 transports
package transport

import (
	"time"

	"github.com/nfcgate/doorterm/pn532"
)

// RetryOperation is one attempt. It returns the result, whether the attempt
// should be repeated, and an error that stops retrying.
type RetryOperation[T any] func() (T, bool, error)

// RetryConfig configures WithRetry
type RetryConfig struct {
	// OnRetry runs before each repeat, e.g. to send a NACK
	OnRetry    func() error
	Op         string
	Port       string
	MaxRetries int
	RetryDelay time.Duration
}

// WithRetry runs operation until it no longer asks for a retry, fails, or
// MaxRetries repeats have been spent.
func WithRetry[T any](config RetryConfig, operation RetryOperation[T]) (T, error) {
	var zero T

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}
		if !shouldRetry {
			return result, nil
		}
		if attempt >= config.MaxRetries {
			break
		}

		if config.OnRetry != nil {
			if err := config.OnRetry(); err != nil {
				return zero, err
			}
		}
		if config.RetryDelay > 0 {
			time.Sleep(config.RetryDelay)
		}
	}

	return zero, pn532.NewTransportError(config.Op, config.Port, pn532.ErrCommunicationFailed, pn532.ErrorTypeTransient)
}

// TimeoutRetry polls operation every pollInterval until it stops asking for
// a retry or timeout elapses.
func TimeoutRetry[T any](op, port string, timeout, pollInterval time.Duration, operation RetryOperation[T]) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)

	for {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}
		if !shouldRetry {
			return result, nil
		}
		if !time.Now().Before(deadline) {
			return zero, pn532.NewTimeoutError(op, port)
		}
		time.Sleep(pollInterval)
	}
}
