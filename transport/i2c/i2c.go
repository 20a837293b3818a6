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

// Package i2c provides I2C transport implementation for PN532
package i2c

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nfcgate/doorterm/internal/frame"
	"github.com/nfcgate/doorterm/internal/transport"
	"github.com/nfcgate/doorterm/pn532"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// Address is the PN532's 7-bit I2C address
	Address = 0x24

	pn532Ready   = 0x01
	maxClockFreq = 400 * physic.KiloHertz

	defaultTimeout    = time.Second
	readyPollInterval = time.Millisecond
	maxReceiveRetries = 2
)

// bus is the part of a periph.io I2C device the transport uses
type bus interface {
	Tx(w, r []byte) error
}

// Transport implements the pn532.Transport interface for I2C communication
type Transport struct {
	dev     bus
	closer  io.Closer
	busName string
	timeout time.Duration
	mu      sync.Mutex
}

// New opens busName (e.g. "/dev/i2c-1" or "1") and addresses the PN532 on it.
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	b, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	// not every adapter supports 400 kHz; the default speed works too
	_ = b.SetSpeed(maxClockFreq)

	t := newTransport(&i2c.Dev{Addr: Address, Bus: b}, busName)
	t.closer = b
	return t, nil
}

func newTransport(dev bus, busName string) *Transport {
	return &Transport{
		dev:     dev,
		busName: busName,
		timeout: defaultTimeout,
	}
}

// SendCommand sends a command to the PN532 and waits for response
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return nil, pn532.NewTransportError("sendCommand", t.busName, pn532.ErrTransportClosed, pn532.ErrorTypePermanent)
	}
	if err := t.sendFrame(cmd, args); err != nil {
		return nil, err
	}
	if err := t.waitAck(); err != nil {
		return nil, err
	}
	return t.receiveFrame()
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close releases the bus
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dev = nil
	if t.closer != nil {
		if err := t.closer.Close(); err != nil {
			return fmt.Errorf("failed to close I2C bus: %w", err)
		}
		t.closer = nil
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportI2C
}

func (t *Transport) sendFrame(cmd byte, args []byte) error {
	frm, err := frame.Build(cmd, args)
	if err != nil {
		return pn532.NewDataTooLargeError("sendFrame", t.busName)
	}
	if err := t.dev.Tx(frm, nil); err != nil {
		return pn532.NewTransportError("sendFrame", t.busName, fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err),
			pn532.ErrorTypeTransient)
	}
	return nil
}

// read returns one I2C read of n frame bytes. Every PN532 I2C read starts
// with a status byte; ok is false while the chip is busy.
func (t *Transport) read(n int) (buf []byte, ok bool, err error) {
	buf = make([]byte, n+1)
	if err := t.dev.Tx(nil, buf); err != nil {
		return nil, false, pn532.NewTransportError("read", t.busName,
			fmt.Errorf("%w: %w", pn532.ErrTransportRead, err), pn532.ErrorTypeTransient)
	}
	if buf[0]&pn532Ready == 0 {
		return nil, false, nil
	}
	return buf[1:], true, nil
}

func (t *Transport) waitAck() error {
	_, err := transport.TimeoutRetry("waitAck", t.busName, t.timeout, readyPollInterval, func() (struct{}, bool, error) {
		buf, ok, err := t.read(len(frame.AckFrame))
		if err != nil || !ok {
			return struct{}{}, !ok && err == nil, err
		}
		if !frame.IsACK(buf) {
			return struct{}{}, false, pn532.NewNoACKError("waitAck", t.busName)
		}
		return struct{}{}, false, nil
	})
	return err
}

func (t *Transport) receiveFrame() ([]byte, error) {
	return transport.WithRetry(transport.RetryConfig{
		Op:         "receiveFrame",
		Port:       t.busName,
		MaxRetries: maxReceiveRetries,
		OnRetry:    t.sendNack,
	}, func() ([]byte, bool, error) {
		buf, err := t.waitResponse()
		if err != nil {
			return nil, false, err
		}
		data, _, err := frame.Parse(buf)
		switch {
		case err == nil:
			return data, false, t.sendAck()
		case errors.Is(err, frame.ErrApplicationError):
			return nil, false, pn532.NewTransportError("receiveFrame", t.busName, err, pn532.ErrorTypePermanent)
		default:
			return nil, true, nil
		}
	})
}

func (t *Transport) waitResponse() ([]byte, error) {
	return transport.TimeoutRetry("receiveFrame", t.busName, t.timeout, readyPollInterval, func() ([]byte, bool, error) {
		buf, ok, err := t.read(frame.MaxFrameLength)
		return buf, !ok && err == nil, err
	})
}

func (t *Transport) sendAck() error {
	if err := t.dev.Tx(frame.AckFrame, nil); err != nil {
		return fmt.Errorf("failed to send ACK: %w", err)
	}
	return nil
}

func (t *Transport) sendNack() error {
	if err := t.dev.Tx(frame.NackFrame, nil); err != nil {
		return fmt.Errorf("failed to send NACK: %w", err)
	}
	return nil
}

// Ensure Transport implements pn532.Transport
var _ pn532.Transport = (*Transport)(nil)
