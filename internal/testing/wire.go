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

package testing

import (
	"bytes"
	"sync"

	"github.com/nfcgate/doorterm/internal/frame"
)

// Wire is a byte-level PN532 for transport tests. Frames written to it are
// decoded and answered through Handler; the ACK and the response frame are
// queued for reading. A NACK from the host re-queues the last response.
type Wire struct {
	Handler func(cmd byte, args []byte) ([]byte, error)
	// CorruptNext corrupts the data checksum of that many upcoming responses
	CorruptNext int
	// SkipACK stops the wire from acknowledging commands
	SkipACK  bool
	queue    [][]byte
	last     []byte
	stream   []byte
	Commands [][]byte
	Acks     int
	Nacks    int
	mu       sync.Mutex
}

// NewWire creates a wire answering through handler
func NewWire(handler func(cmd byte, args []byte) ([]byte, error)) *Wire {
	return &Wire{Handler: handler}
}

// Write accepts one host frame
func (w *Wire) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case bytes.Equal(p, frame.AckFrame):
		w.Acks++
		return len(p), nil
	case bytes.Equal(p, frame.NackFrame):
		w.Nacks++
		if w.last != nil {
			w.enqueue(w.respond(w.last))
		}
		return len(p), nil
	}

	data, _, err := frame.ParseCommand(p)
	if err != nil {
		return 0, err
	}
	w.Commands = append(w.Commands, data)
	if w.SkipACK {
		return len(p), nil
	}
	w.enqueue(append([]byte(nil), frame.AckFrame...))

	resp, err := w.Handler(data[0], data[1:])
	if err != nil {
		return len(p), nil
	}
	w.last = resp
	w.enqueue(w.respond(resp))
	return len(p), nil
}

func (w *Wire) respond(resp []byte) []byte {
	out := frame.ResponseFrame(resp)
	if w.CorruptNext > 0 {
		w.CorruptNext--
		out[len(out)-2] ^= 0xFF
	}
	return out
}

func (w *Wire) enqueue(f []byte) {
	w.queue = append(w.queue, f)
	w.stream = append(w.stream, f...)
}

// Pending reports whether a frame is waiting to be read
func (w *Wire) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) > 0
}

// NextFrame pops the next queued frame, or nil. Frame-oriented buses (I2C,
// SPI) read whole frames.
func (w *Wire) NextFrame() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return nil
	}
	f := w.queue[0]
	w.queue = w.queue[1:]
	if len(w.stream) >= len(f) {
		w.stream = w.stream[len(f):]
	}
	return f
}

// Read drains queued bytes as a stream, as a UART sees them. It returns
// 0, nil when nothing is queued, like a serial read timeout.
func (w *Wire) Read(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := copy(p, w.stream)
	w.stream = w.stream[n:]
	remaining := n
	for remaining > 0 && len(w.queue) > 0 {
		if len(w.queue[0]) > remaining {
			w.queue[0] = w.queue[0][remaining:]
			break
		}
		remaining -= len(w.queue[0])
		w.queue = w.queue[1:]
	}
	return n, nil
}
