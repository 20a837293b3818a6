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
	"fmt"

	"github.com/nfcgate/doorterm/mifare"
)

// AuthenticateBlock unlocks the sector containing block on the current
// target with a MIFARE Classic key. keyType is mifare.KeyA or mifare.KeyB.
// The last four UID bytes are sent as the auth UID. A refused key returns
// an error matching ErrAuthRejected; the tag then has to be rediscovered.
func (d *Device) AuthenticateBlock(ctx context.Context, block int, keyType byte, key []byte) error {
	if d.target == nil {
		return ErrNoTarget
	}
	if block < 0 || block > 0xFF {
		return fmt.Errorf("%w: block %d", ErrInvalidParameter, block)
	}
	if keyType != mifare.KeyA && keyType != mifare.KeyB {
		return fmt.Errorf("%w: key type 0x%02X (must be 0x00 for key A or 0x01 for key B)", ErrInvalidParameter, keyType)
	}
	if len(key) != mifare.KeySize {
		return fmt.Errorf("%w: MIFARE key must be %d bytes", ErrInvalidParameter, mifare.KeySize)
	}

	uid := d.target.UID
	cmd := make([]byte, 0, 2+mifare.KeySize+4)
	cmd = append(cmd, mifareCmdAuthA+keyType, byte(block))
	cmd = append(cmd, key...)
	cmd = append(cmd, uid[len(uid)-4:]...)
	defer mifare.Zero(cmd[2 : 2+mifare.KeySize])

	if _, err := d.dataExchange(ctx, cmd); err != nil {
		d.authSector = -1
		if d.state == StateAuthenticated {
			d.state = StateReady
		}
		return fmt.Errorf("authentication of block %d with key %s failed: %w",
			block, mifare.KeyTypeName(keyType), err)
	}

	d.authSector = mifare.SectorOf(block)
	d.state = StateAuthenticated
	debugf("authenticated sector %d with key %s", d.authSector, mifare.KeyTypeName(keyType))
	return nil
}

// ReadBlock reads one 16-byte block from the authenticated sector.
func (d *Device) ReadBlock(ctx context.Context, block int) ([]byte, error) {
	if err := d.checkAuthenticated(block); err != nil {
		return nil, err
	}
	data, err := d.dataExchange(ctx, []byte{mifareCmdRead, byte(block)})
	if err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", block, err)
	}
	if len(data) < mifare.BlockSize {
		return nil, fmt.Errorf("%w: read of block %d returned %d bytes", ErrInvalidResponse, block, len(data))
	}
	return data[:mifare.BlockSize], nil
}

// WriteBlock writes one 16-byte block of the authenticated sector. The
// manufacturer block is refused.
func (d *Device) WriteBlock(ctx context.Context, block int, data []byte) error {
	if len(data) != mifare.BlockSize {
		return fmt.Errorf("%w: block data must be %d bytes, got %d", ErrInvalidParameter, mifare.BlockSize, len(data))
	}
	if block == mifare.ManufacturerBlock {
		return fmt.Errorf("%w: cannot write to manufacturer block", ErrInvalidParameter)
	}
	if err := d.checkAuthenticated(block); err != nil {
		return err
	}

	cmd := make([]byte, 0, 2+mifare.BlockSize)
	cmd = append(cmd, mifareCmdWrite, byte(block))
	cmd = append(cmd, data...)
	if _, err := d.dataExchange(ctx, cmd); err != nil {
		return fmt.Errorf("failed to write block %d: %w", block, err)
	}
	return nil
}

func (d *Device) checkAuthenticated(block int) error {
	if d.target == nil {
		return ErrNoTarget
	}
	if block < 0 || block > 0xFF {
		return fmt.Errorf("%w: block %d", ErrInvalidParameter, block)
	}
	if d.state != StateAuthenticated || mifare.SectorOf(block) != d.authSector {
		return fmt.Errorf("%w: block %d (sector %d)", ErrNotAuthenticated, block, mifare.SectorOf(block))
	}
	return nil
}

// ExchangeAPDU sends an ISO7816 command APDU to the current ISO14443-4
// peer and returns its response APDU.
func (d *Device) ExchangeAPDU(ctx context.Context, apdu []byte) ([]byte, error) {
	if d.target == nil {
		return nil, ErrNoTarget
	}
	if !d.target.SupportsExchange() {
		return nil, ErrNotExchangeCapable
	}
	if len(apdu) == 0 || len(apdu) > maxExchangeLen {
		return nil, fmt.Errorf("%w: APDU length %d", ErrDataTooLarge, len(apdu))
	}
	resp, err := d.dataExchange(ctx, apdu)
	if err != nil {
		return nil, fmt.Errorf("APDU exchange failed: %w", err)
	}
	return resp, nil
}

// dataExchange wraps payload in InDataExchange and checks the status byte.
func (d *Device) dataExchange(ctx context.Context, payload []byte) ([]byte, error) {
	args := make([]byte, 0, len(payload)+1)
	args = append(args, inDataExchangeTarget)
	args = append(args, payload...)

	resp, err := d.sendCommand(ctx, cmdInDataExchange, args)
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 {
		return nil, fmt.Errorf("%w: empty InDataExchange response", ErrInvalidResponse)
	}
	// bit 6 flags more information (chaining), bit 7 NAD
	if status := resp[0] & 0x3F; status != 0 {
		ce := &CommandError{Cmd: cmdInDataExchange, Status: status}
		if errors.Is(ce, ErrNoTargetDetected) {
			d.clearTarget()
		}
		return nil, ce
	}
	return resp[1:], nil
}
