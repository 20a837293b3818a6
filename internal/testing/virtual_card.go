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
	"errors"
	"fmt"

	"github.com/nfcgate/doorterm/mifare"
)

// Virtual card errors
var (
	ErrCardAuth       = errors.New("virtual card: authentication failed")
	ErrCardHalted     = errors.New("virtual card: halted until reselected")
	ErrCardNotAuthed  = errors.New("virtual card: sector not authenticated")
	ErrCardProtected  = errors.New("virtual card: block is write protected")
	ErrCardOutOfRange = errors.New("virtual card: block out of range")
)

// defaultTrailer is a transport-configured sector trailer
var defaultTrailer = []byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // key A
	0xFF, 0x07, 0x80, 0x69, // access bits
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // key B
}

// VirtualCard is a simulated MIFARE Classic 1K or 4K card. Keys are taken
// from the sector trailers, so changing a trailer changes the key.
type VirtualCard struct {
	UID        []byte
	Memory     [][]byte
	SAK        byte
	Sectors    int
	Present    bool
	halted     bool
	authSector int
	// Writes counts successful block writes
	Writes int
	// CorruptWrites flips the first byte of every written block
	CorruptWrites bool
}

// NewVirtualMIFARE1K creates a blank 1K card with factory keys
func NewVirtualMIFARE1K(uid []byte) *VirtualCard {
	if uid == nil {
		uid = TestMIFARE1KUID
	}
	return newVirtualCard(uid, SAKMifare1K, mifare.Sectors1K)
}

// NewVirtualMIFARE4K creates a blank 4K card with factory keys
func NewVirtualMIFARE4K(uid []byte) *VirtualCard {
	if uid == nil {
		uid = TestMIFARE4KUID
	}
	return newVirtualCard(uid, SAKMifare4K, mifare.Sectors4K)
}

func newVirtualCard(uid []byte, sak byte, sectors int) *VirtualCard {
	blocks := mifare.TrailerBlock(sectors-1) + 1
	card := &VirtualCard{
		UID:        append([]byte(nil), uid...),
		SAK:        sak,
		Sectors:    sectors,
		Memory:     make([][]byte, blocks),
		Present:    true,
		authSector: -1,
	}
	for i := range card.Memory {
		card.Memory[i] = make([]byte, mifare.BlockSize)
	}
	copy(card.Memory[0], uid)
	for sector := 0; sector < sectors; sector++ {
		copy(card.Memory[mifare.TrailerBlock(sector)], defaultTrailer)
	}
	return card
}

// SetKeys replaces key A and key B of sector
func (c *VirtualCard) SetKeys(sector int, keyA, keyB mifare.Key) {
	trailer := c.Memory[mifare.TrailerBlock(sector)]
	copy(trailer[0:6], keyA[:])
	copy(trailer[10:16], keyB[:])
}

// SetBlock writes block directly, bypassing authentication
func (c *VirtualCard) SetBlock(block int, data []byte) {
	c.Memory[block] = make([]byte, mifare.BlockSize)
	copy(c.Memory[block], data)
}

// Block returns a copy of block
func (c *VirtualCard) Block(block int) []byte {
	return append([]byte(nil), c.Memory[block]...)
}

// Authenticate checks key against the sector trailer. authUID is the four
// UID bytes the reader sent. A failed authentication halts the card; it
// refuses everything until Select is called.
func (c *VirtualCard) Authenticate(block int, keyType byte, key, authUID []byte) error {
	c.authSector = -1
	if c.halted {
		return fmt.Errorf("%w: %w", ErrCardAuth, ErrCardHalted)
	}
	if block < 0 || block >= len(c.Memory) {
		return ErrCardOutOfRange
	}
	if !bytes.Equal(authUID, c.UID[len(c.UID)-4:]) {
		c.halted = true
		return fmt.Errorf("%w: UID mismatch", ErrCardAuth)
	}
	trailer := c.Memory[mifare.TrailerBlock(mifare.SectorOf(block))]
	want := trailer[0:6]
	if keyType == mifare.KeyB {
		want = trailer[10:16]
	}
	if !bytes.Equal(key, want) {
		c.halted = true
		return fmt.Errorf("%w: wrong key %s", ErrCardAuth, mifare.KeyTypeName(keyType))
	}
	c.authSector = mifare.SectorOf(block)
	return nil
}

// ReadBlock reads block from the authenticated sector
func (c *VirtualCard) ReadBlock(block int) ([]byte, error) {
	if err := c.checkAccess(block); err != nil {
		return nil, err
	}
	return c.Block(block), nil
}

// WriteBlock writes block in the authenticated sector
func (c *VirtualCard) WriteBlock(block int, data []byte) error {
	if err := c.checkAccess(block); err != nil {
		return err
	}
	if block == mifare.ManufacturerBlock {
		return ErrCardProtected
	}
	if len(data) != mifare.BlockSize {
		return fmt.Errorf("data must be exactly %d bytes, got %d", mifare.BlockSize, len(data))
	}
	c.SetBlock(block, data)
	if c.CorruptWrites {
		c.Memory[block][0] ^= 0xFF
	}
	c.Writes++
	return nil
}

// Halt drops authentication and puts the card to sleep, as a failed auth
// or a deselect does
func (c *VirtualCard) Halt() {
	c.halted = true
	c.authSector = -1
}

// Select wakes the card, as anticollision during discovery does
func (c *VirtualCard) Select() {
	c.halted = false
	c.authSector = -1
}

// Halted reports whether the card needs to be selected again
func (c *VirtualCard) Halted() bool {
	return c.halted
}

// Remove takes the card out of the field
func (c *VirtualCard) Remove() {
	c.Present = false
	c.authSector = -1
}

// Insert puts the card back into the field
func (c *VirtualCard) Insert() {
	c.Present = true
	c.halted = false
}

func (c *VirtualCard) checkAccess(block int) error {
	if block < 0 || block >= len(c.Memory) {
		return ErrCardOutOfRange
	}
	if c.authSector < 0 || mifare.SectorOf(block) != c.authSector {
		return ErrCardNotAuthed
	}
	return nil
}
