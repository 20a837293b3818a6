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
	"testing"
	"time"

	testutil "github.com/nfcgate/doorterm/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverTargetFindsCard(t *testing.T) {
	t.Parallel()

	device, _, sim := newSimulatedDevice(t)
	sim.Card = testutil.NewVirtualMIFARE1K(nil)

	uid, err := device.DiscoverTarget(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestMIFARE1KUID, uid)

	target := device.CurrentTarget()
	require.NotNil(t, target)
	assert.Equal(t, byte(testutil.SAKMifare1K), target.SAK)
	assert.Equal(t, uint16(0x0004), target.ATQA)
	assert.False(t, target.SupportsExchange())
	assert.Equal(t, StateReady, device.State())

	uid[0] = 0x00
	assert.Equal(t, testutil.TestMIFARE1KUID, device.CurrentTarget().UID, "returned UID must be a copy")
}

func TestDiscoverTargetTimesOut(t *testing.T) {
	t.Parallel()

	device, mock, _ := newSimulatedDevice(t)

	start := time.Now()
	_, err := device.DiscoverTarget(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrNoTargetDetected)
	assert.Less(t, time.Since(start), time.Second)
	assert.Greater(t, mock.GetCallCount(cmdInListPassiveTarget), 1)
	assert.Equal(t, StateReady, device.State())
	assert.Nil(t, device.CurrentTarget())
}

func TestDiscoverTargetHonoursParentContext(t *testing.T) {
	t.Parallel()

	device, _, _ := newSimulatedDevice(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := device.DiscoverTarget(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiscoverTargetFindsCardInsertedLater(t *testing.T) {
	t.Parallel()

	device, mock, _ := newSimulatedDevice(t)
	sim := testutil.NewSimulator()
	card := testutil.NewVirtualMIFARE1K(nil)
	polls := 0
	mock.SetResponseFunc(func(cmd byte, args []byte) ([]byte, error) {
		if cmd == cmdInListPassiveTarget {
			polls++
			if polls == 3 {
				sim.Card = card
			}
		}
		return sim.Handle(cmd, args)
	})

	uid, err := device.DiscoverTarget(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, card.UID, uid)
	assert.Equal(t, 3, polls)
}

func TestDiscoverTargetStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	device, mock, _ := newSimulatedDevice(t)
	mock.SetError(cmdInListPassiveTarget, errors.New("bus gone"))

	_, err := device.DiscoverTarget(context.Background(), time.Second)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoTargetDetected)
	assert.Equal(t, 1, mock.GetCallCount(cmdInListPassiveTarget))
}

func TestDiscoverTargetReleasesPreviousTarget(t *testing.T) {
	t.Parallel()

	device, mock, sim := newSimulatedDevice(t)
	sim.Card = testutil.NewVirtualMIFARE1K(nil)

	_, err := device.DiscoverTarget(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, mock.GetCallCount(cmdInRelease))

	_, err = device.DiscoverTarget(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetCallCount(cmdInRelease))
}

func TestDiscoverPeer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		setup   func(sim *testutil.Simulator)
		wantErr error
		name    string
		wantUID []byte
		polls   int
	}{
		{
			name: "phone answers",
			setup: func(sim *testutil.Simulator) {
				sim.Phone = testutil.NewVirtualPhone([]byte{0xF0}, nil)
			},
			wantUID: testutil.TestPhoneUID,
			polls:   1,
		},
		{
			name: "plain card ends the poll at once",
			setup: func(sim *testutil.Simulator) {
				sim.Card = testutil.NewVirtualMIFARE1K(nil)
			},
			wantErr: ErrNotExchangeCapable,
			polls:   1,
		},
		{
			name:    "empty field exhausts attempts",
			setup:   func(*testutil.Simulator) {},
			wantErr: ErrNoTargetDetected,
			polls:   5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, mock, sim := newSimulatedDevice(t)
			tt.setup(sim)

			uid, err := device.DiscoverPeer(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantUID, uid)
			}
			assert.Equal(t, tt.polls, mock.GetCallCount(cmdInListPassiveTarget))
			assert.Equal(t, StateReady, device.State())
		})
	}
}

func TestDiscoverPeerKeepsCardSelected(t *testing.T) {
	t.Parallel()

	device, _, sim := newSimulatedDevice(t)
	sim.Card = testutil.NewVirtualMIFARE1K(nil)

	_, err := device.DiscoverPeer(context.Background())
	require.ErrorIs(t, err, ErrNotExchangeCapable)
	target := device.CurrentTarget()
	require.NotNil(t, target)
	assert.Equal(t, testutil.TestMIFARE1KUID, target.UID)
}

func TestParseTargetData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		wantUID []byte
		wantATS []byte
		wantErr bool
	}{
		{
			name:    "4 byte UID",
			data:    []byte{0x01, 0x00, 0x04, 0x08, 0x04, 0x12, 0x34, 0x56, 0x78},
			wantUID: []byte{0x12, 0x34, 0x56, 0x78},
		},
		{
			name:    "7 byte UID",
			data:    []byte{0x01, 0x00, 0x44, 0x08, 0x07, 0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56},
			wantUID: []byte{0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56},
		},
		{
			name:    "ISO14443-4 with ATS",
			data:    []byte{0x01, 0x00, 0x04, 0x20, 0x04, 0x08, 0x01, 0x02, 0x03, 0x05, 0x78, 0x80, 0x70, 0x02},
			wantUID: []byte{0x08, 0x01, 0x02, 0x03},
			wantATS: []byte{0x78, 0x80, 0x70, 0x02},
		},
		{name: "too short", data: []byte{0x01, 0x00, 0x04}, wantErr: true},
		{name: "unsupported UID length", data: []byte{0x01, 0x00, 0x04, 0x08, 0x05, 1, 2, 3, 4, 5}, wantErr: true},
		{name: "truncated UID", data: []byte{0x01, 0x00, 0x04, 0x08, 0x07, 1, 2, 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			target, err := parseTargetData(tt.data)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUID, target.UID)
			if tt.wantATS != nil {
				assert.Equal(t, tt.wantATS, target.ATS)
			}
		})
	}
}
