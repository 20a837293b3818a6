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
	"sync"
	"time"
)

// MockTransport is a Transport for tests. Responses are looked up per
// command: a configured error wins, then the response func, then a canned
// response. Responses include the response code (cmd+1) like a real
// transport returns them.
type MockTransport struct {
	responses    map[byte][]byte
	errors       map[byte]error
	callCounts   map[byte]int
	lastArgs     map[byte][]byte
	responseFunc func(cmd byte, args []byte) ([]byte, error)
	delay        time.Duration
	timeout      time.Duration
	mu           sync.Mutex
	closed       bool
}

// NewMockTransport creates an empty mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses:  make(map[byte][]byte),
		errors:     make(map[byte]error),
		callCounts: make(map[byte]int),
		lastArgs:   make(map[byte][]byte),
		timeout:    time.Second,
	}
}

// SendCommand implements Transport
func (m *MockTransport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	m.mu.Lock()
	m.callCounts[cmd]++
	m.lastArgs[cmd] = append([]byte(nil), args...)
	closed := m.closed
	delay := m.delay
	err := m.errors[cmd]
	fn := m.responseFunc
	resp, ok := m.responses[cmd]
	m.mu.Unlock()

	if closed {
		return nil, ErrTransportClosed
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(cmd, args)
	}
	if !ok {
		return nil, fmt.Errorf("mock: no response configured for command 0x%02X", cmd)
	}
	return append([]byte(nil), resp...), nil
}

// SetResponse sets the canned response for cmd
func (m *MockTransport) SetResponse(cmd byte, resp []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[cmd] = append([]byte(nil), resp...)
}

// SetError makes cmd fail with err
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[cmd] = err
}

// ClearError removes an error set with SetError
func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errors, cmd)
}

// SetResponseFunc routes every command without a configured error to fn
func (m *MockTransport) SetResponseFunc(fn func(cmd byte, args []byte) ([]byte, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseFunc = fn
}

// SetDelay delays every command by d
func (m *MockTransport) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// GetCallCount returns how many times cmd was sent
func (m *MockTransport) GetCallCount(cmd byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[cmd]
}

// LastArgs returns the arguments of the last cmd sent
func (m *MockTransport) LastArgs(cmd byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.lastArgs[cmd]...)
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetTimeout implements Transport
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}
