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

package spi

import (
	"context"
	"math/bits"
	"testing"
	"time"

	testutil "github.com/nfcgate/doorterm/internal/testing"
	"github.com/nfcgate/doorterm/pn532"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an LSB-first PN532 on an SPI bus
type fakeConn struct {
	wire    *testutil.Wire
	ops     []byte
	current []byte
	busyFor int
}

func (c *fakeConn) Tx(w, r []byte) error {
	in := make([]byte, len(w))
	for i, b := range w {
		in[i] = bits.Reverse8(b)
	}
	out := make([]byte, len(r))
	c.ops = append(c.ops, in[0])

	switch in[0] {
	case opDataWrite:
		if _, err := c.wire.Write(in[1:]); err != nil {
			return err
		}
	case opStatusRead:
		switch {
		case c.busyFor > 0:
			c.busyFor--
		case c.current != nil || c.wire.Pending():
			out[1] = pn532Ready
		}
	case opDataRead:
		if c.current == nil {
			c.current = c.wire.NextFrame()
		}
		copy(out[1:], c.current)
		c.current = nil
	}

	for i, b := range out {
		r[i] = bits.Reverse8(b)
	}
	return nil
}

func newSimulatedTransport(t *testing.T) (*Transport, *fakeConn, *testutil.Simulator) {
	t.Helper()
	sim := testutil.NewSimulator()
	c := &fakeConn{wire: testutil.NewWire(sim.Handle)}
	tr := newTransport(c, "SPI0.0")
	require.NoError(t, tr.SetTimeout(100*time.Millisecond))
	return tr, c, sim
}

func TestReverse(t *testing.T) {
	t.Parallel()

	b := []byte{0x01, 0x02, 0x80, 0xD4}
	reverse(b)
	assert.Equal(t, []byte{0x80, 0x40, 0x01, 0x2B}, b)
}

func TestSendCommand(t *testing.T) {
	t.Parallel()

	tr, c, _ := newSimulatedTransport(t)
	c.busyFor = 2

	resp, err := tr.SendCommand(0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, testutil.BuildFirmwareVersionResponse(), resp)
	assert.Equal(t, byte(opDataWrite), c.ops[0])
	assert.Contains(t, c.ops, byte(opStatusRead))
	assert.Equal(t, byte(opDataRead), c.ops[len(c.ops)-1])
}

func TestSendCommandNacksCorruptFrame(t *testing.T) {
	t.Parallel()

	tr, c, _ := newSimulatedTransport(t)
	c.wire.CorruptNext = 1

	resp, err := tr.SendCommand(0x32, []byte{0x05, 0xFF, 0x01, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x33}, resp)
	assert.Equal(t, 1, c.wire.Nacks)
}

func TestSendCommandTimesOutWithoutACK(t *testing.T) {
	t.Parallel()

	tr, c, _ := newSimulatedTransport(t)
	c.wire.SkipACK = true

	_, err := tr.SendCommand(0x02, nil)
	require.ErrorIs(t, err, pn532.ErrTransportTimeout)
}

func TestDeviceOverSPI(t *testing.T) {
	t.Parallel()

	tr, _, sim := newSimulatedTransport(t)
	sim.Phone = testutil.NewVirtualPhone([]byte{0xF0, 0x01}, []byte("0123456789abcdef"))

	device, err := pn532.New(tr)
	require.NoError(t, err)
	require.NoError(t, device.Init())

	_, err = device.DiscoverPeer(context.Background())
	require.NoError(t, err)
	resp, err := device.ExchangeAPDU(context.Background(), []byte{0x00, 0xA4, 0x04, 0x00, 0x02, 0xF0, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), resp)
}

func TestClose(t *testing.T) {
	t.Parallel()

	tr, _, _ := newSimulatedTransport(t)
	assert.Equal(t, pn532.TransportSPI, tr.Type())
	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())
	_, err := tr.SendCommand(0x02, nil)
	require.ErrorIs(t, err, pn532.ErrTransportClosed)
}
