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

// Package spi provides SPI transport implementation for PN532
package spi

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
	"sync"
	"time"

	"github.com/nfcgate/doorterm/internal/frame"
	"github.com/nfcgate/doorterm/internal/transport"
	"github.com/nfcgate/doorterm/pn532"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PN532 SPI operation prefixes
const (
	opDataWrite  = 0x01
	opStatusRead = 0x02
	opDataRead   = 0x03
)

const (
	pn532Ready = 0x01
	// the PN532 accepts up to 5 MHz; 1 MHz is reliable on long wires
	clockFreq = 1 * physic.MegaHertz

	defaultTimeout    = time.Second
	readyPollInterval = time.Millisecond
	maxReceiveRetries = 2
)

// conn is the part of a periph.io SPI connection the transport uses
type conn interface {
	Tx(w, r []byte) error
}

// Transport implements the pn532.Transport interface over SPI mode 0. The
// PN532 shifts bytes LSB first, so every byte is bit-reversed on the way
// in and out.
type Transport struct {
	conn    conn
	closer  io.Closer
	port    string
	timeout time.Duration
	mu      sync.Mutex
}

// New opens the SPI port (e.g. "/dev/spidev0.0" or "SPI0.0").
func New(port string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", port, err)
	}
	c, err := p.Connect(clockFreq, spi.Mode0, 8)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to configure SPI port %s: %w", port, err)
	}

	t := newTransport(c, port)
	t.closer = p
	return t, nil
}

func newTransport(c conn, port string) *Transport {
	return &Transport{
		conn:    c,
		port:    port,
		timeout: defaultTimeout,
	}
}

// SendCommand sends a command to the PN532 and waits for response
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil, pn532.NewTransportError("sendCommand", t.port, pn532.ErrTransportClosed, pn532.ErrorTypePermanent)
	}
	frm, err := frame.Build(cmd, args)
	if err != nil {
		return nil, pn532.NewDataTooLargeError("sendFrame", t.port)
	}
	if err := t.write(frm); err != nil {
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

// Close releases the SPI port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = nil
	if t.closer != nil {
		if err := t.closer.Close(); err != nil {
			return fmt.Errorf("failed to close SPI port: %w", err)
		}
		t.closer = nil
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportSPI
}

// tx runs one transaction of op followed by payload and returns the bytes
// clocked in after the op byte.
func (t *Transport) tx(op byte, payload []byte) ([]byte, error) {
	w := make([]byte, len(payload)+1)
	w[0] = op
	copy(w[1:], payload)
	reverse(w)

	r := make([]byte, len(w))
	if err := t.conn.Tx(w, r); err != nil {
		return nil, fmt.Errorf("SPI transfer failed: %w", err)
	}
	reverse(r)
	return r[1:], nil
}

func (t *Transport) write(frm []byte) error {
	if _, err := t.tx(opDataWrite, frm); err != nil {
		return pn532.NewTransportError("sendFrame", t.port, fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err),
			pn532.ErrorTypeTransient)
	}
	return nil
}

func (t *Transport) waitReady(op string) error {
	_, err := transport.TimeoutRetry(op, t.port, t.timeout, readyPollInterval, func() (struct{}, bool, error) {
		status, err := t.tx(opStatusRead, []byte{0x00})
		if err != nil {
			return struct{}{}, false, pn532.NewTransportError(op, t.port,
				fmt.Errorf("%w: %w", pn532.ErrTransportRead, err), pn532.ErrorTypeTransient)
		}
		return struct{}{}, status[0]&pn532Ready == 0, nil
	})
	return err
}

func (t *Transport) read(op string, n int) ([]byte, error) {
	buf, err := t.tx(opDataRead, make([]byte, n))
	if err != nil {
		return nil, pn532.NewTransportError(op, t.port, fmt.Errorf("%w: %w", pn532.ErrTransportRead, err),
			pn532.ErrorTypeTransient)
	}
	return buf, nil
}

func (t *Transport) waitAck() error {
	if err := t.waitReady("waitAck"); err != nil {
		return err
	}
	buf, err := t.read("waitAck", len(frame.AckFrame))
	if err != nil {
		return err
	}
	if !frame.IsACK(buf) {
		return pn532.NewNoACKError("waitAck", t.port)
	}
	return nil
}

func (t *Transport) receiveFrame() ([]byte, error) {
	return transport.WithRetry(transport.RetryConfig{
		Op:         "receiveFrame",
		Port:       t.port,
		MaxRetries: maxReceiveRetries,
		OnRetry: func() error {
			return t.write(frame.NackFrame)
		},
	}, func() ([]byte, bool, error) {
		if err := t.waitReady("receiveFrame"); err != nil {
			return nil, false, err
		}
		buf, err := t.read("receiveFrame", frame.MaxFrameLength)
		if err != nil {
			return nil, false, err
		}
		data, _, err := frame.Parse(buf)
		switch {
		case err == nil:
			return data, false, nil
		case errors.Is(err, frame.ErrApplicationError):
			return nil, false, pn532.NewTransportError("receiveFrame", t.port, err, pn532.ErrorTypePermanent)
		default:
			return nil, true, nil
		}
	})
}

func reverse(b []byte) {
	for i := range b {
		b[i] = bits.Reverse8(b[i])
	}
}

// Ensure Transport implements pn532.Transport
var _ pn532.Transport = (*Transport)(nil)
