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

// Package mifare holds the memory layout of MIFARE Classic 1K/4K tags:
// sector and block arithmetic, key material and the block that carries
// the access token.
package mifare

// Memory layout. Sectors [0, ShortSectors) hold BlocksPerShortSector blocks,
// the remaining LongSectors sectors of a 4K tag hold BlocksPerLongSector.
const (
	BlockSize            = 16
	ShortSectors         = 32
	LongSectors          = 8
	BlocksPerShortSector = 4
	BlocksPerLongSector  = 16

	// Sectors1K and Sectors4K are the sector counts of the two tag sizes
	Sectors1K = 16
	Sectors4K = ShortSectors + LongSectors

	// ManufacturerBlock holds the UID and is never written
	ManufacturerBlock = 0

	// TokenBlock stores the 16-byte access token (sector 2)
	TokenBlock = 8

	// firstLongBlock is the first block of sector 32
	firstLongBlock = ShortSectors * BlocksPerShortSector
)

// FirstBlock returns the first block number of sector.
func FirstBlock(sector int) int {
	if sector < ShortSectors {
		return sector * BlocksPerShortSector
	}
	return firstLongBlock + (sector-ShortSectors)*BlocksPerLongSector
}

// TrailerBlock returns the sector trailer block (keys and access bits) of sector.
func TrailerBlock(sector int) int {
	return FirstBlock(sector) + BlocksInSector(sector) - 1
}

// BlocksInSector returns 4 for the short sectors and 16 for the long ones.
func BlocksInSector(sector int) int {
	if sector < ShortSectors {
		return BlocksPerShortSector
	}
	return BlocksPerLongSector
}

// SectorOf returns the sector that contains block.
func SectorOf(block int) int {
	if block < firstLongBlock {
		return block / BlocksPerShortSector
	}
	return ShortSectors + (block-firstLongBlock)/BlocksPerLongSector
}

// IsFirstBlock reports whether block starts a sector.
func IsFirstBlock(block int) bool {
	return FirstBlock(SectorOf(block)) == block
}

// IsTrailerBlock reports whether block is a sector trailer.
func IsTrailerBlock(block int) bool {
	return TrailerBlock(SectorOf(block)) == block
}

// ValidSector reports whether sector exists on a tag with the given sector count.
func ValidSector(sector, sectors int) bool {
	return sector >= 0 && sector < sectors && sectors <= Sectors4K
}

// CardSectors maps a SAK byte to the number of sectors on the tag. Unknown
// SAK values are treated as 1K, which is the smaller and safer layout.
func CardSectors(sak byte) int {
	switch sak {
	case 0x18, 0x38:
		return Sectors4K
	default:
		return Sectors1K
	}
}
