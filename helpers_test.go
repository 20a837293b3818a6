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

package doorterm

import (
	"context"
	"testing"
	"time"

	testutil "github.com/nfcgate/doorterm/internal/testing"
	"github.com/nfcgate/doorterm/pn532"
	"github.com/stretchr/testify/require"
)

// newSimulatedProtocol returns a protocol over an initialized PN532 device
// backed by a simulator with an empty field.
func newSimulatedProtocol(t *testing.T) (*Protocol, *pn532.MockTransport, *testutil.Simulator) {
	t.Helper()

	mock := pn532.NewMockTransport()
	sim := testutil.NewSimulator()
	mock.SetResponseFunc(sim.Handle)

	device, err := pn532.New(mock,
		pn532.WithPeerPolling(time.Millisecond, 5),
		pn532.WithDiscoveryInterval(time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, device.InitContext(context.Background()))
	return NewProtocol(device), mock, sim
}

func sequence(start byte) []byte {
	b := make([]byte, TokenSize)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func repeat(v byte) []byte {
	b := make([]byte, TokenSize)
	for i := range b {
		b[i] = v
	}
	return b
}

// fakeSession is a Transceiver with scripted results
type fakeSession struct {
	peerErr     error
	targetErr   error
	authErr     error
	readErr     error
	writeErr    error
	exchangeErr error
	uid         []byte
	reply       []byte
	block       []byte
	writes      [][]byte
	auths       []int
	resets      int
	targetCalls int
}

func (f *fakeSession) DiscoverPeer(context.Context) ([]byte, error) {
	if f.peerErr != nil {
		return nil, f.peerErr
	}
	return f.uid, nil
}

func (f *fakeSession) DiscoverTarget(context.Context, time.Duration) ([]byte, error) {
	f.targetCalls++
	if f.targetErr != nil {
		return nil, f.targetErr
	}
	return f.uid, nil
}

func (f *fakeSession) AuthenticateBlock(_ context.Context, block int, _ byte, _ []byte) error {
	f.auths = append(f.auths, block)
	return f.authErr
}

func (f *fakeSession) ReadBlock(context.Context, int) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return append([]byte(nil), f.block...), nil
}

func (f *fakeSession) WriteBlock(_ context.Context, _ int, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeSession) ExchangeAPDU(context.Context, []byte) ([]byte, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.reply, nil
}

func (f *fakeSession) ResetContext(context.Context) error {
	f.resets++
	return nil
}
