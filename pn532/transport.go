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
	"context"
	"errors"
	"fmt"
	"time"
)

// Transport is a byte-level link to a PN532. SendCommand frames cmd and
// args, waits for the ACK and returns the response data without the TFI
// byte, i.e. starting with cmd+1.
type Transport interface {
	SendCommand(cmd byte, args []byte) ([]byte, error)
	Close() error
	SetTimeout(timeout time.Duration) error
	IsConnected() bool
	Type() TransportType
}

// ContextTransport is a Transport that can abandon a command when its
// context is done
type ContextTransport interface {
	Transport
	SendCommandContext(ctx context.Context, cmd byte, args []byte) ([]byte, error)
}

// TransportType names the physical link
type TransportType string

// Link types
const (
	TransportUART TransportType = "uart"
	TransportI2C  TransportType = "i2c"
	TransportSPI  TransportType = "spi"
	TransportMock TransportType = "mock"
)

// RetryTransport repeats commands that fail with a retryable error.
// InDataExchange is sent exactly once: the card may already have acted on
// an authentication, a block write or an APDU before the reply was lost.
type RetryTransport struct {
	Transport
	config *RetryConfig
}

// NewRetryTransport wraps t. A nil config uses DefaultRetryConfig.
func NewRetryTransport(t Transport, config *RetryConfig) *RetryTransport {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryTransport{Transport: t, config: config}
}

// SetRetryConfig replaces the retry configuration
func (t *RetryTransport) SetRetryConfig(config *RetryConfig) {
	if config != nil {
		t.config = config
	}
}

// SendCommand implements Transport
func (t *RetryTransport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	return t.SendCommandContext(context.Background(), cmd, args)
}

// SendCommandContext implements ContextTransport
func (t *RetryTransport) SendCommandContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if cmd == cmdInDataExchange {
		return sendContext(ctx, t.Transport, cmd, args)
	}

	var resp []byte
	err := RetryWithConfig(ctx, t.config, func() error {
		r, err := sendContext(ctx, t.Transport, cmd, args)
		if err != nil {
			return asTransportError(cmd, err)
		}
		resp = r
		return nil
	})
	return resp, err
}

// Close closes the wrapped transport
func (t *RetryTransport) Close() error {
	if err := t.Transport.Close(); err != nil {
		return fmt.Errorf("failed to close %s transport: %w", t.Type(), err)
	}
	return nil
}

func asTransportError(cmd byte, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{
		Op:        fmt.Sprintf("command 0x%02X", cmd),
		Err:       err,
		Type:      GetErrorType(err),
		Retryable: IsRetryable(err),
	}
}

// sendContext sends cmd and stops waiting when ctx is done. Transports
// without context support keep running the command in the background until
// their own timeout fires; the result is then discarded.
func sendContext(ctx context.Context, t Transport, cmd byte, args []byte) ([]byte, error) {
	if ct, ok := t.(ContextTransport); ok {
		return ct.SendCommandContext(ctx, cmd, args)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("command 0x%02X not sent: %w", cmd, err)
	}

	type result struct {
		err  error
		data []byte
	}
	done := make(chan result, 1)
	go func() {
		data, err := t.SendCommand(cmd, args)
		done <- result{err: err, data: data}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("command 0x%02X abandoned: %w", cmd, ctx.Err())
	case res := <-done:
		return res.data, res.err
	}
}
