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
	"testing"
	"time"

	testutil "github.com/nfcgate/doorterm/internal/testing"
	"github.com/stretchr/testify/require"
)

// newSimulatedDevice returns an initialized device backed by a simulator
// with an empty field.
func newSimulatedDevice(t *testing.T) (*Device, *MockTransport, *testutil.Simulator) {
	t.Helper()

	mock := NewMockTransport()
	sim := testutil.NewSimulator()
	mock.SetResponseFunc(sim.Handle)

	device, err := New(mock,
		WithPeerPolling(time.Millisecond, 5),
		WithDiscoveryInterval(time.Millisecond),
		WithRetryConfig(fastRetry(3)),
	)
	require.NoError(t, err)
	require.NoError(t, device.InitContext(context.Background()))
	return device, mock, sim
}

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 1,
	}
}
