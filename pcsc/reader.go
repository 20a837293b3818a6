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

// Package pcsc drives a PC/SC contactless reader (ACR122U class) with the
// same session operations as the PN532 device.
//
// A Reader is not safe for concurrent use.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebfe/scard"
	"github.com/nfcgate/doorterm/mifare"
)

const (
	statusPollSlice   = 250 * time.Millisecond
	defaultPeerWindow = 100 * time.Millisecond
)

// cardContext is the part of *scard.Context the reader uses
type cardContext interface {
	ListReaders() ([]string, error)
	GetStatusChange(rs []scard.ReaderState, timeout time.Duration) error
	Release() error
}

// card is the part of *scard.Card the reader uses
type card interface {
	Transmit(cmd []byte) ([]byte, error)
	Status() (*scard.CardStatus, error)
	Disconnect(d scard.Disposition) error
}

// Reader is one PC/SC reader slot
type Reader struct {
	sc         cardContext
	connect    func(reader string) (card, error)
	card       card
	name       string
	uid        []byte
	atr        []byte
	peerWindow time.Duration
	authSector int
}

// Open connects to the PC/SC service and selects the reader called name, or
// the first listed reader when name is empty.
func Open(name string) (*Reader, error) {
	sc, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc EstablishContext: %w", err)
	}
	connect := func(reader string) (card, error) {
		c, err := sc.Connect(reader, scard.ShareShared, scard.ProtocolAny)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	r, err := newReader(sc, connect, name)
	if err != nil {
		_ = sc.Release()
		return nil, err
	}
	return r, nil
}

func newReader(sc cardContext, connect func(string) (card, error), name string) (*Reader, error) {
	readers, err := sc.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("pcsc ListReaders: %w", err)
	}
	if len(readers) == 0 {
		return nil, ErrNoReader
	}
	if name == "" {
		name = readers[0]
	} else if !contains(readers, name) {
		return nil, fmt.Errorf("%w: %q", ErrNoReader, name)
	}
	return &Reader{
		sc:         sc,
		connect:    connect,
		name:       name,
		peerWindow: defaultPeerWindow,
		authSector: -1,
	}, nil
}

// Name returns the selected reader's name
func (r *Reader) Name() string {
	return r.name
}

// DiscoverPeer looks briefly for a card that accepts raw APDUs. A storage
// card yields ErrNotExchangeCapable and stays connected for the card path.
func (r *Reader) DiscoverPeer(ctx context.Context) ([]byte, error) {
	uid, err := r.discover(ctx, r.peerWindow)
	if err != nil {
		return nil, err
	}
	if isStorageCard(r.atr) {
		return nil, ErrNotExchangeCapable
	}
	return uid, nil
}

// DiscoverTarget waits up to timeout for a card and connects to it. A card
// that is still connected and present is reused.
func (r *Reader) DiscoverTarget(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if r.card != nil && r.stillPresent() {
		return append([]byte(nil), r.uid...), nil
	}
	return r.discover(ctx, timeout)
}

// AuthenticateBlock loads key into the reader and authenticates block's sector
func (r *Reader) AuthenticateBlock(_ context.Context, block int, keyType byte, key []byte) error {
	if r.card == nil {
		return ErrNoTarget
	}
	if block < 0 || block > mifare.TrailerBlock(mifare.Sectors4K-1) {
		return fmt.Errorf("%w: block %d", ErrInvalidParameter, block)
	}
	if keyType != mifare.KeyA && keyType != mifare.KeyB {
		return fmt.Errorf("%w: key type 0x%02X", ErrInvalidParameter, keyType)
	}
	if len(key) != mifare.KeySize {
		return fmt.Errorf("%w: key length %d", ErrInvalidParameter, len(key))
	}

	r.authSector = -1
	if _, err := r.transmit("load key", loadKeyCommand(key)); err != nil {
		return err
	}
	if _, err := r.transmit("authenticate", authCommand(block, keyType)); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			// A refused key halts the card. Dropping it makes the next
			// DiscoverTarget connect and select it again.
			_ = r.disconnect(scard.ResetCard)
			return fmt.Errorf("%w: block %d: %w", ErrAuthRejected, block, err)
		}
		return err
	}
	r.authSector = mifare.SectorOf(block)
	return nil
}

// ReadBlock reads one 16-byte block of the authenticated sector
func (r *Reader) ReadBlock(_ context.Context, block int) ([]byte, error) {
	if err := r.checkAuthenticated(block); err != nil {
		return nil, err
	}
	data, err := r.transmit("read block", readCommand(block, mifare.BlockSize))
	if err != nil {
		return nil, err
	}
	if len(data) != mifare.BlockSize {
		return nil, fmt.Errorf("read block %d: got %d bytes", block, len(data))
	}
	return data, nil
}

// WriteBlock writes one 16-byte block of the authenticated sector. Block 0
// holds the manufacturer data and is refused.
func (r *Reader) WriteBlock(_ context.Context, block int, data []byte) error {
	if block == mifare.ManufacturerBlock {
		return fmt.Errorf("%w: block 0 is read only", ErrInvalidParameter)
	}
	if len(data) != mifare.BlockSize {
		return fmt.Errorf("%w: data length %d", ErrInvalidParameter, len(data))
	}
	if err := r.checkAuthenticated(block); err != nil {
		return err
	}
	_, err := r.transmit("write block", writeCommand(block, data))
	return err
}

// ExchangeAPDU sends apdu to the card and returns the full response,
// status word included.
func (r *Reader) ExchangeAPDU(_ context.Context, apdu []byte) ([]byte, error) {
	if r.card == nil {
		return nil, ErrNoTarget
	}
	if isStorageCard(r.atr) {
		return nil, ErrNotExchangeCapable
	}
	resp, err := r.card.Transmit(apdu)
	if err != nil {
		return nil, fmt.Errorf("pcsc transmit: %w", err)
	}
	return resp, nil
}

// ResetContext drops the connected card and resets it
func (r *Reader) ResetContext(_ context.Context) error {
	return r.disconnect(scard.ResetCard)
}

// Close disconnects and releases the PC/SC context
func (r *Reader) Close() error {
	err := r.disconnect(scard.LeaveCard)
	if rerr := r.sc.Release(); rerr != nil && err == nil {
		err = fmt.Errorf("pcsc Release: %w", rerr)
	}
	return err
}

func (r *Reader) discover(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if err := r.disconnect(scard.LeaveCard); err != nil {
		return nil, err
	}
	if err := r.waitPresent(ctx, timeout); err != nil {
		return nil, err
	}

	c, err := r.connect(r.name)
	if err != nil {
		return nil, fmt.Errorf("pcsc Connect: %w", err)
	}
	status, err := c.Status()
	if err != nil {
		_ = c.Disconnect(scard.LeaveCard)
		return nil, fmt.Errorf("pcsc Status: %w", err)
	}
	r.card = c
	r.atr = append([]byte(nil), status.Atr...)

	uid, err := r.transmit("get UID", getUIDCommand())
	if err != nil {
		_ = r.disconnect(scard.LeaveCard)
		return nil, err
	}
	if len(uid) != 4 && len(uid) != 7 {
		_ = r.disconnect(scard.LeaveCard)
		return nil, fmt.Errorf("unexpected UID length %d", len(uid))
	}
	r.uid = uid
	return append([]byte(nil), uid...), nil
}

func (r *Reader) waitPresent(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	rs := []scard.ReaderState{{Reader: r.name, CurrentState: scard.StateUnaware}}
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("discovery cancelled: %w", ctx.Err())
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrNoTargetDetected
		}
		err := r.sc.GetStatusChange(rs, min(remaining, statusPollSlice))
		if err != nil && !errors.Is(err, scard.ErrTimeout) {
			return fmt.Errorf("pcsc GetStatusChange: %w", err)
		}
		rs[0].CurrentState = rs[0].EventState
		if rs[0].EventState&scard.StatePresent != 0 {
			return nil
		}
	}
}

func (r *Reader) stillPresent() bool {
	status, err := r.card.Status()
	return err == nil && status.State&scard.Present != 0
}

func (r *Reader) checkAuthenticated(block int) error {
	if r.card == nil {
		return ErrNoTarget
	}
	if r.authSector < 0 || mifare.SectorOf(block) != r.authSector {
		return fmt.Errorf("%w: block %d", ErrNotAuthenticated, block)
	}
	return nil
}

func (r *Reader) transmit(command string, cmd []byte) ([]byte, error) {
	resp, err := r.card.Transmit(cmd)
	if err != nil {
		return nil, fmt.Errorf("pcsc %s: %w", command, err)
	}
	return checkResponse(command, resp)
}

func (r *Reader) disconnect(d scard.Disposition) error {
	r.uid = nil
	r.atr = nil
	r.authSector = -1
	if r.card == nil {
		return nil
	}
	c := r.card
	r.card = nil
	if err := c.Disconnect(d); err != nil {
		return fmt.Errorf("pcsc Disconnect: %w", err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
