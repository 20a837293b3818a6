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

package main

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"testing"

	"github.com/nfcgate/doorterm"
	"github.com/nfcgate/doorterm/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintDump(t *testing.T) {
	t.Parallel()

	dumps := []doorterm.SectorDump{
		{
			Sector:        0,
			Authenticated: true,
			Blocks: []doorterm.BlockDump{
				{Block: 0, Data: []byte("AB")},
				{Block: 1, Err: errors.New("timeout")},
			},
		},
		{Sector: 1, AuthErr: errors.New("authentication rejected")},
	}

	var buf bytes.Buffer
	printDump(&buf, dumps)

	want := "=== Sector 0 ===\n" +
		"Block 0:\nHex: 0x41 0x42\nASCII: AB\n" +
		"Block 1: read failed: timeout\n" +
		"=== Sector 1 ===\n" +
		"authentication failed: authentication rejected\n"
	assert.Equal(t, want, buf.String())
}

func TestOverlayValidatesReaderOnly(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("carddump", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f, err := parseFlags(fs, []string{"-transport", "UART", "-device", "/dev/ttyUSB0", "-sectors", "40"})
	require.NoError(t, err)

	cfg, err := f.overlay(config.Config{
		Reader:           config.ReaderPN532,
		Transport:        "spi",
		DevicePath:       config.DefaultDevicePath,
		DiscoveryTimeout: config.DefaultDiscovery,
		InitAttempts:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, "uart", cfg.Transport)
	assert.Equal(t, "/dev/ttyUSB0", cfg.DevicePath)
	assert.Equal(t, 40, *f.sectors)
}
