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

// Package uart provides the high speed UART (HSU) transport for PN532
package uart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nfcgate/doorterm/internal/frame"
	"github.com/nfcgate/doorterm/internal/transport"
	"github.com/nfcgate/doorterm/pn532"
	"go.bug.st/serial"
)

const (
	baudRate          = 115200
	defaultTimeout    = time.Second
	readPollTimeout   = 10 * time.Millisecond
	maxReceiveRetries = 2
)

// wakeupSequence takes the PN532 out of power down before the first
// command. The long preamble gives the HSU time to lock on.
var wakeupSequence = []byte{
	0x55, 0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// port is the part of serial.Port the transport uses
type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// Transport implements the pn532.Transport interface over a serial port
type Transport struct {
	port     port
	portName string
	pending  []byte
	timeout  time.Duration
	mu       sync.Mutex
	awake    bool
}

// New opens portName at 115200 8N1.
func New(portName string) (*Transport, error) {
	p, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := p.SetReadTimeout(readPollTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}
	return newTransport(p, portName), nil
}

func newTransport(p port, portName string) *Transport {
	return &Transport{
		port:     p,
		portName: portName,
		timeout:  defaultTimeout,
	}
}

// SendCommand sends a command to the PN532 and waits for response
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, pn532.NewTransportError("sendCommand", t.portName, pn532.ErrTransportClosed, pn532.ErrorTypePermanent)
	}
	frm, err := frame.Build(cmd, args)
	if err != nil {
		return nil, pn532.NewDataTooLargeError("sendFrame", t.portName)
	}

	if err := t.port.ResetInputBuffer(); err != nil {
		return nil, pn532.NewTransportError("sendFrame", t.portName, err, pn532.ErrorTypeTransient)
	}
	t.pending = t.pending[:0]
	if !t.awake {
		frm = append(append([]byte(nil), wakeupSequence...), frm...)
	}
	if err := t.write(frm); err != nil {
		return nil, err
	}
	t.awake = true

	if err := t.waitAck(); err != nil {
		return nil, err
	}
	return t.receiveFrame()
}

// SetTimeout sets the response timeout
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the serial port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportUART
}

func (t *Transport) write(b []byte) error {
	if _, err := t.port.Write(b); err != nil {
		t.awake = false
		return pn532.NewTransportError("write", t.portName, fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err),
			pn532.ErrorTypeTransient)
	}
	return nil
}

// fill reads whatever the port has into pending. It returns false when the
// read timed out without data.
func (t *Transport) fill() (bool, error) {
	buf := make([]byte, 64)
	n, err := t.port.Read(buf)
	if err != nil {
		return false, pn532.NewTransportError("read", t.portName, fmt.Errorf("%w: %w", pn532.ErrTransportRead, err),
			pn532.ErrorTypeTransient)
	}
	t.pending = append(t.pending, buf[:n]...)
	return n > 0, nil
}

func (t *Transport) waitAck() error {
	_, err := transport.TimeoutRetry("waitAck", t.portName, t.timeout, 0, func() (struct{}, bool, error) {
		if idx := bytes.Index(t.pending, frame.AckFrame[1:5]); idx >= 0 {
			t.pending = t.pending[idx+4:]
			return struct{}{}, false, nil
		}
		_, err := t.fill()
		return struct{}{}, true, err
	})
	if err != nil {
		t.awake = false
	}
	return err
}

func (t *Transport) receiveFrame() ([]byte, error) {
	return transport.WithRetry(transport.RetryConfig{
		Op:         "receiveFrame",
		Port:       t.portName,
		MaxRetries: maxReceiveRetries,
		OnRetry: func() error {
			t.pending = t.pending[:0]
			return t.write(frame.NackFrame)
		},
	}, func() ([]byte, bool, error) {
		data, err := t.readFrame()
		switch {
		case err == nil:
			return data, false, nil
		case errors.Is(err, errCorrupt):
			return nil, true, nil
		default:
			return nil, false, err
		}
	})
}

// readFrame accumulates bytes until pending holds a complete frame.
func (t *Transport) readFrame() ([]byte, error) {
	return transport.TimeoutRetry("receiveFrame", t.portName, t.timeout, 0, func() ([]byte, bool, error) {
		data, consumed, err := frame.Parse(t.pending)
		switch {
		case err == nil:
			t.pending = t.pending[consumed:]
			return data, false, nil
		case errors.Is(err, frame.ErrIncomplete), errors.Is(err, frame.ErrNoFrame):
			_, ferr := t.fill()
			return nil, true, ferr
		case errors.Is(err, frame.ErrApplicationError):
			return nil, false, pn532.NewTransportError("receiveFrame", t.portName, err, pn532.ErrorTypePermanent)
		default:
			return nil, false, fmt.Errorf("%w: %w", errCorrupt, err)
		}
	})
}

var errCorrupt = errors.New("corrupt frame")

// Ensure Transport implements pn532.Transport
var _ pn532.Transport = (*Transport)(nil)
