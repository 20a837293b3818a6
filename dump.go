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
	"fmt"
	"time"

	"github.com/nfcgate/doorterm/mifare"
)

// SectorDump is the content of one sector
type SectorDump struct {
	// AuthErr is set when the factory key was refused
	AuthErr       error
	Blocks        []BlockDump
	Sector        int
	Authenticated bool
}

// BlockDump is one block of a dump. Err is set when the block could not be
// read.
type BlockDump struct {
	Err   error
	Data  []byte
	Block int
}

// DumpCard reads every block of the first sectors sectors with factory
// key B. Sectors whose key is refused are reported, not fatal. The session
// is reset afterwards.
func (p *Protocol) DumpCard(ctx context.Context, sectors int, timeout time.Duration) ([]SectorDump, error) {
	if sectors <= 0 || sectors > mifare.Sectors4K {
		return nil, fmt.Errorf("sector count %d out of range", sectors)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer p.reset(ctx)

	if _, err := p.session.DiscoverTarget(ctx, timeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	key := mifare.FactoryKey
	dumps := make([]SectorDump, 0, sectors)
	for sector := 0; sector < sectors; sector++ {
		if err := ctx.Err(); err != nil {
			return dumps, err
		}
		dump := SectorDump{Sector: sector}
		first := mifare.FirstBlock(sector)
		dump.AuthErr = p.session.AuthenticateBlock(ctx, first, mifare.KeyB, key[:])
		dump.Authenticated = dump.AuthErr == nil

		for block := first; block <= mifare.TrailerBlock(sector); block++ {
			bd := BlockDump{Block: block}
			if dump.Authenticated {
				bd.Data, bd.Err = p.session.ReadBlock(ctx, block)
			} else {
				bd.Err = dump.AuthErr
			}
			dump.Blocks = append(dump.Blocks, bd)
		}
		dumps = append(dumps, dump)

		if !dump.Authenticated {
			// a refused key halts the card; select it again
			if _, err := p.session.DiscoverTarget(ctx, timeout); err != nil {
				return dumps, fmt.Errorf("card lost after sector %d: %w", sector, err)
			}
		}
	}
	return dumps, nil
}
