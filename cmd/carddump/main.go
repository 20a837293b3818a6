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
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nfcgate/doorterm"
	"github.com/nfcgate/doorterm/internal/config"
	"github.com/nfcgate/doorterm/internal/session"
	"github.com/nfcgate/doorterm/mifare"
	"github.com/nfcgate/doorterm/pn532"
)

type flags struct {
	reader    *string
	transport *string
	device    *string
	sectors   *int
	timeout   *time.Duration
	debug     *bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, error) {
	f := &flags{
		reader:    fs.String("reader", "", "Reader type: pn532 or pcsc"),
		transport: fs.String("transport", "", "PN532 link: spi, i2c or uart"),
		device: fs.String("device", "",
			"Device path (e.g., /dev/spidev0.0 or /dev/ttyUSB0), \"auto\" for I2C, or PC/SC reader name"),
		sectors: fs.Int("sectors", mifare.Sectors1K, "Number of sectors to dump (16 for 1K, 40 for 4K)"),
		timeout: fs.Duration("timeout", doorterm.DefaultTimeout, "Timeout for card detection"),
		debug:   fs.Bool("debug", false, "Enable debug output"),
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *flags) overlay(cfg config.Config) (config.Config, error) {
	if *f.reader != "" {
		cfg.Reader = strings.ToLower(*f.reader)
		if cfg.Reader == config.ReaderPCSC && cfg.DevicePath == config.DefaultDevicePath {
			cfg.DevicePath = ""
		}
	}
	if *f.transport != "" {
		cfg.Transport = strings.ToLower(*f.transport)
	}
	if *f.device != "" {
		cfg.DevicePath = *f.device
	}
	cfg.Debug = cfg.Debug || *f.debug
	if err := cfg.ValidateReader(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func printDump(w io.Writer, dumps []doorterm.SectorDump) {
	for _, sector := range dumps {
		_, _ = fmt.Fprintf(w, "=== Sector %d ===\n", sector.Sector)
		if !sector.Authenticated {
			_, _ = fmt.Fprintf(w, "authentication failed: %v\n", sector.AuthErr)
			continue
		}
		for _, block := range sector.Blocks {
			if block.Err != nil {
				_, _ = fmt.Fprintf(w, "Block %d: read failed: %v\n", block.Block, block.Err)
				continue
			}
			_, _ = fmt.Fprintf(w, "Block %d:\n%s\n", block.Block, doorterm.FormatHexASCII(block.Data))
		}
	}
}

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("carddump", flag.ContinueOnError)
	f, err := parseFlags(fs, args)
	if err != nil {
		return 2
	}
	cfg, err := f.overlay(config.FromEnv())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}
	if cfg.Debug {
		pn532.SetDebugEnabled(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := session.Open(ctx, cfg, nil)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to open reader: %v\n", err)
		return 1
	}
	defer func() { _ = s.Close() }()

	_, _ = fmt.Fprintf(stdout, "Waiting for card (timeout: %s)...\n", *f.timeout)
	dumps, err := doorterm.NewProtocol(s).DumpCard(ctx, *f.sectors, *f.timeout)
	printDump(stdout, dumps)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Dump failed: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}
