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

package pcsc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ebfe/scard"
	testutil "github.com/nfcgate/doorterm/internal/testing"
	"github.com/nfcgate/doorterm/mifare"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mifareATR = []byte{
		0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00,
		0x03, 0x06, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x6A,
	}
	phoneATR = []byte{0x3B, 0x80, 0x80, 0x01, 0x01}
	sw9000   = []byte{0x90, 0x00}
)

type fakeContext struct {
	readers  []string
	present  bool
	released bool
	polls    int
}

func (f *fakeContext) ListReaders() ([]string, error) {
	return f.readers, nil
}

func (f *fakeContext) GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error {
	f.polls++
	if f.present {
		rs[0].EventState = scard.StatePresent
		return nil
	}
	time.Sleep(min(timeout, 5*time.Millisecond))
	rs[0].EventState = scard.StateEmpty
	return scard.ErrTimeout
}

func (f *fakeContext) Release() error {
	f.released = true
	return nil
}

// fakeCard answers PC/SC pseudo-APDUs from a virtual MIFARE card, or raw
// APDUs from a virtual phone.
type fakeCard struct {
	mifare      *testutil.VirtualCard
	phone       *testutil.VirtualPhone
	transmitErr error
	loadedKey   []byte
	atr         []byte
	disconnects []scard.Disposition
	transmitted [][]byte
}

func (c *fakeCard) Status() (*scard.CardStatus, error) {
	return &scard.CardStatus{State: scard.Present, Atr: c.atr}, nil
}

func (c *fakeCard) Disconnect(d scard.Disposition) error {
	c.disconnects = append(c.disconnects, d)
	if c.mifare != nil && d == scard.ResetCard {
		c.mifare.Halt()
	}
	return nil
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	c.transmitted = append(c.transmitted, append([]byte(nil), cmd...))
	if c.transmitErr != nil {
		return nil, c.transmitErr
	}
	if c.phone != nil && cmd[0] != claReader {
		return c.phone.Transceive(cmd), nil
	}
	uid := c.uid()
	switch cmd[1] {
	case insGetData:
		return append(append([]byte(nil), uid...), sw9000...), nil
	case insLoadKey:
		c.loadedKey = append([]byte(nil), cmd[5:]...)
		return sw9000, nil
	case insAuth:
		block, keyType := int(cmd[7]), cmd[8]-mifareKeyA
		if err := c.mifare.Authenticate(block, keyType, c.loadedKey, uid[len(uid)-4:]); err != nil {
			return []byte{0x63, 0x00}, nil
		}
		return sw9000, nil
	case insReadBinary:
		data, err := c.mifare.ReadBlock(int(cmd[3]))
		if err != nil {
			return []byte{0x69, 0x82}, nil
		}
		return append(data, sw9000...), nil
	case insUpdate:
		if err := c.mifare.WriteBlock(int(cmd[3]), cmd[5:]); err != nil {
			return []byte{0x69, 0x82}, nil
		}
		return sw9000, nil
	}
	return []byte{0x6D, 0x00}, nil
}

func (c *fakeCard) uid() []byte {
	if c.phone != nil {
		return c.phone.UID
	}
	return c.mifare.UID
}

func newTestReader(t *testing.T, c *fakeCard) (*Reader, *fakeContext) {
	t.Helper()
	sc := &fakeContext{readers: []string{"ACS ACR122U PICC Interface 00 00"}, present: c != nil}
	r, err := newReader(sc, func(string) (card, error) {
		if c == nil {
			return nil, errors.New("no card")
		}
		if c.mifare != nil {
			c.mifare.Select()
		}
		return c, nil
	}, "")
	require.NoError(t, err)
	return r, sc
}

func TestNewReaderSelection(t *testing.T) {
	t.Parallel()

	connect := func(string) (card, error) { return nil, errors.New("unused") }

	_, err := newReader(&fakeContext{}, connect, "")
	require.ErrorIs(t, err, ErrNoReader)

	_, err = newReader(&fakeContext{readers: []string{"a"}}, connect, "b")
	require.ErrorIs(t, err, ErrNoReader)

	r, err := newReader(&fakeContext{readers: []string{"a", "b"}}, connect, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", r.Name())
}

func TestReaderReadsCardToken(t *testing.T) {
	t.Parallel()

	vc := testutil.NewVirtualMIFARE1K(nil)
	vc.SetBlock(mifare.TokenBlock, []byte("0123456789abcdef"))
	r, _ := newTestReader(t, &fakeCard{mifare: vc, atr: mifareATR})
	ctx := context.Background()

	_, err := r.DiscoverPeer(ctx)
	require.ErrorIs(t, err, ErrNotExchangeCapable)

	uid, err := r.DiscoverTarget(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestMIFARE1KUID, uid)

	key := mifare.FactoryKey
	require.NoError(t, r.AuthenticateBlock(ctx, mifare.TokenBlock, mifare.KeyB, key[:]))
	data, err := r.ReadBlock(ctx, mifare.TokenBlock)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), data)
}

func TestReaderWriteBlock(t *testing.T) {
	t.Parallel()

	vc := testutil.NewVirtualMIFARE1K(nil)
	r, _ := newTestReader(t, &fakeCard{mifare: vc, atr: mifareATR})
	ctx := context.Background()
	key := mifare.FactoryKey

	_, err := r.DiscoverTarget(ctx, time.Second)
	require.NoError(t, err)

	err = r.WriteBlock(ctx, mifare.TokenBlock, make([]byte, 16))
	require.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, r.AuthenticateBlock(ctx, mifare.TokenBlock, mifare.KeyA, key[:]))
	require.NoError(t, r.WriteBlock(ctx, mifare.TokenBlock, []byte("fedcba9876543210")))
	assert.Equal(t, []byte("fedcba9876543210"), vc.Block(mifare.TokenBlock))

	_, err = r.ReadBlock(ctx, 12)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestReaderRejectsBadParameters(t *testing.T) {
	t.Parallel()

	r, _ := newTestReader(t, &fakeCard{mifare: testutil.NewVirtualMIFARE1K(nil), atr: mifareATR})
	ctx := context.Background()
	key := mifare.FactoryKey

	require.ErrorIs(t, r.AuthenticateBlock(ctx, 8, mifare.KeyB, key[:]), ErrNoTarget)

	_, err := r.DiscoverTarget(ctx, time.Second)
	require.NoError(t, err)

	tests := []struct {
		name string
		err  error
	}{
		{name: "negative block", err: r.AuthenticateBlock(ctx, -1, mifare.KeyB, key[:])},
		{name: "block past 4K", err: r.AuthenticateBlock(ctx, 256, mifare.KeyB, key[:])},
		{name: "bad key type", err: r.AuthenticateBlock(ctx, 8, 0x05, key[:])},
		{name: "short key", err: r.AuthenticateBlock(ctx, 8, mifare.KeyB, key[:4])},
		{name: "write block 0", err: r.WriteBlock(ctx, 0, make([]byte, 16))},
		{name: "short write", err: r.WriteBlock(ctx, 8, make([]byte, 4))},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, tt.err, ErrInvalidParameter, tt.name)
	}
}

func TestReaderAuthRejected(t *testing.T) {
	t.Parallel()

	vc := testutil.NewVirtualMIFARE1K(nil)
	vc.SetKeys(2, mifare.Key{1, 2, 3, 4, 5, 6}, mifare.Key{1, 2, 3, 4, 5, 6})
	r, _ := newTestReader(t, &fakeCard{mifare: vc, atr: mifareATR})
	ctx := context.Background()
	key := mifare.FactoryKey

	_, err := r.DiscoverTarget(ctx, time.Second)
	require.NoError(t, err)

	err = r.AuthenticateBlock(ctx, mifare.TokenBlock, mifare.KeyB, key[:])
	require.ErrorIs(t, err, ErrAuthRejected)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, byte(0x63), se.SW1)

	assert.Nil(t, r.card, "refused key drops the card")
	_, err = r.ReadBlock(ctx, mifare.TokenBlock)
	require.ErrorIs(t, err, ErrNoTarget)
}

func TestReaderReselectsAfterRefusedKey(t *testing.T) {
	t.Parallel()

	vc := testutil.NewVirtualMIFARE1K(nil)
	vc.SetKeys(1, mifare.Key{1, 2, 3, 4, 5, 6}, mifare.Key{1, 2, 3, 4, 5, 6})
	vc.SetBlock(mifare.TokenBlock, []byte("0123456789abcdef"))
	fc := &fakeCard{mifare: vc, atr: mifareATR}
	r, _ := newTestReader(t, fc)
	ctx := context.Background()
	key := mifare.FactoryKey

	_, err := r.DiscoverTarget(ctx, time.Second)
	require.NoError(t, err)

	err = r.AuthenticateBlock(ctx, mifare.FirstBlock(1), mifare.KeyB, key[:])
	require.ErrorIs(t, err, ErrAuthRejected)
	assert.True(t, vc.Halted())
	assert.Equal(t, []scard.Disposition{scard.ResetCard}, fc.disconnects)

	uid, err := r.DiscoverTarget(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestMIFARE1KUID, uid)
	assert.False(t, vc.Halted())

	require.NoError(t, r.AuthenticateBlock(ctx, mifare.TokenBlock, mifare.KeyB, key[:]))
	data, err := r.ReadBlock(ctx, mifare.TokenBlock)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), data)
}

func TestReaderExchangesWithPhone(t *testing.T) {
	t.Parallel()

	aid := []byte{0xF0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	reply := append([]byte("phone-token-0001"), sw9000...)
	r, _ := newTestReader(t, &fakeCard{phone: testutil.NewVirtualPhone(aid, reply), atr: phoneATR})
	ctx := context.Background()

	uid, err := r.DiscoverPeer(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestPhoneUID, uid)

	selectAID := append(append([]byte{0x00, 0xA4, 0x04, 0x00, 0x07}, aid...), 0x00)
	resp, err := r.ExchangeAPDU(ctx, selectAID)
	require.NoError(t, err)
	assert.Equal(t, reply, resp)
}

func TestReaderExchangeRefusedForStorageCard(t *testing.T) {
	t.Parallel()

	r, _ := newTestReader(t, &fakeCard{mifare: testutil.NewVirtualMIFARE1K(nil), atr: mifareATR})
	ctx := context.Background()

	_, err := r.ExchangeAPDU(ctx, []byte{0x00, 0xA4, 0x04, 0x00})
	require.ErrorIs(t, err, ErrNoTarget)

	_, err = r.DiscoverTarget(ctx, time.Second)
	require.NoError(t, err)
	_, err = r.ExchangeAPDU(ctx, []byte{0x00, 0xA4, 0x04, 0x00})
	require.ErrorIs(t, err, ErrNotExchangeCapable)
}

func TestReaderDiscoveryTimesOut(t *testing.T) {
	t.Parallel()

	r, sc := newTestReader(t, nil)

	start := time.Now()
	_, err := r.DiscoverTarget(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrNoTargetDetected)
	assert.Less(t, time.Since(start), time.Second)
	assert.Positive(t, sc.polls)
}

func TestReaderDiscoveryCancelled(t *testing.T) {
	t.Parallel()

	r, _ := newTestReader(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.DiscoverTarget(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReaderResetAndClose(t *testing.T) {
	t.Parallel()

	c := &fakeCard{mifare: testutil.NewVirtualMIFARE1K(nil), atr: mifareATR}
	r, sc := newTestReader(t, c)
	ctx := context.Background()

	_, err := r.DiscoverTarget(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, r.ResetContext(ctx))
	assert.Equal(t, []scard.Disposition{scard.ResetCard}, c.disconnects)

	_, err = r.ReadBlock(ctx, 8)
	require.ErrorIs(t, err, ErrNoTarget)

	require.NoError(t, r.Close())
	assert.True(t, sc.released)
}

func TestReaderTransmitError(t *testing.T) {
	t.Parallel()

	c := &fakeCard{mifare: testutil.NewVirtualMIFARE1K(nil), atr: mifareATR}
	r, _ := newTestReader(t, c)
	c.transmitErr = errors.New("reader unplugged")

	_, err := r.DiscoverTarget(context.Background(), time.Second)
	require.ErrorContains(t, err, "reader unplugged")
	assert.Equal(t, []scard.Disposition{scard.LeaveCard}, c.disconnects)
}
