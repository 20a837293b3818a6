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

package i2c

import (
	"context"
	"errors"
	"testing"
	"time"

	testutil "github.com/nfcgate/doorterm/internal/testing"
	"github.com/nfcgate/doorterm/pn532"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus answers reads with the wire's next frame behind a ready byte
type fakeBus struct {
	wire    *testutil.Wire
	busyFor int
	txErr   error
}

func (b *fakeBus) Tx(w, r []byte) error {
	if b.txErr != nil {
		return b.txErr
	}
	if w != nil {
		if _, err := b.wire.Write(w); err != nil {
			return err
		}
	}
	if r != nil {
		for i := range r {
			r[i] = 0
		}
		if b.busyFor > 0 {
			b.busyFor--
			return nil
		}
		if f := b.wire.NextFrame(); f != nil {
			r[0] = pn532Ready
			copy(r[1:], f)
		}
	}
	return nil
}

func newSimulatedTransport(t *testing.T) (*Transport, *fakeBus, *testutil.Simulator) {
	t.Helper()
	sim := testutil.NewSimulator()
	b := &fakeBus{wire: testutil.NewWire(sim.Handle)}
	tr := newTransport(b, "/dev/i2c-test")
	require.NoError(t, tr.SetTimeout(100*time.Millisecond))
	return tr, b, sim
}

func TestSendCommand(t *testing.T) {
	t.Parallel()

	tr, b, _ := newSimulatedTransport(t)
	b.busyFor = 3

	resp, err := tr.SendCommand(0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, testutil.BuildFirmwareVersionResponse(), resp)
	assert.Equal(t, 1, b.wire.Acks, "host must acknowledge the response")
	assert.Equal(t, [][]byte{{0x02}}, b.wire.Commands)
}

func TestSendCommandNacksCorruptFrame(t *testing.T) {
	t.Parallel()

	tr, b, _ := newSimulatedTransport(t)
	b.wire.CorruptNext = 1

	resp, err := tr.SendCommand(0x14, []byte{0x01, 0x14, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x15}, resp)
	assert.Equal(t, 1, b.wire.Nacks)
}

func TestSendCommandGivesUpOnPersistentCorruption(t *testing.T) {
	t.Parallel()

	tr, b, _ := newSimulatedTransport(t)
	b.wire.CorruptNext = 10

	_, err := tr.SendCommand(0x02, nil)
	require.ErrorIs(t, err, pn532.ErrCommunicationFailed)
	assert.Equal(t, maxReceiveRetries, b.wire.Nacks)
}

func TestSendCommandWithoutACK(t *testing.T) {
	t.Parallel()

	tr, b, _ := newSimulatedTransport(t)
	b.wire.SkipACK = true

	_, err := tr.SendCommand(0x02, nil)
	require.ErrorIs(t, err, pn532.ErrTransportTimeout)
	assert.True(t, pn532.IsRetryable(err))
}

func TestSendCommandBusError(t *testing.T) {
	t.Parallel()

	tr, b, _ := newSimulatedTransport(t)
	b.txErr = errors.New("remote I/O error")

	_, err := tr.SendCommand(0x02, nil)
	require.ErrorIs(t, err, pn532.ErrTransportWrite)
}

func TestSendCommandRejectsOversizedFrame(t *testing.T) {
	t.Parallel()

	tr, _, _ := newSimulatedTransport(t)
	_, err := tr.SendCommand(0x40, make([]byte, 300))
	require.ErrorIs(t, err, pn532.ErrDataTooLarge)
}

func TestDeviceOverI2C(t *testing.T) {
	t.Parallel()

	tr, _, sim := newSimulatedTransport(t)
	sim.Card = testutil.NewVirtualMIFARE1K(nil)

	device, err := pn532.New(tr)
	require.NoError(t, err)
	require.NoError(t, device.Init())

	uid, err := device.DiscoverTarget(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestMIFARE1KUID, uid)
}

func TestClose(t *testing.T) {
	t.Parallel()

	tr, _, _ := newSimulatedTransport(t)
	assert.True(t, tr.IsConnected())
	assert.Equal(t, pn532.TransportI2C, tr.Type())
	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())

	_, err := tr.SendCommand(0x02, nil)
	require.ErrorIs(t, err, pn532.ErrTransportClosed)
}
