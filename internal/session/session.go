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

// Package session opens the configured reader as a doorterm.Transceiver
package session

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nfcgate/doorterm"
	"github.com/nfcgate/doorterm/internal/config"
	"github.com/nfcgate/doorterm/pcsc"
	"github.com/nfcgate/doorterm/pn532"
	"github.com/nfcgate/doorterm/transport"
)

// Session is an open reader
type Session interface {
	doorterm.Transceiver
	io.Closer
}

// commandRetry covers a single lost frame. InitContext adds its own,
// longer retry loop on top.
var commandRetry = &pn532.RetryConfig{
	MaxAttempts:       2,
	InitialBackoff:    10 * time.Millisecond,
	MaxBackoff:        10 * time.Millisecond,
	BackoffMultiplier: 1,
}

// Opener builds the PN532 transport. transport.Open is used when nil.
type Opener func(ctx context.Context, kind transport.Kind, path string) (pn532.Transport, error)

// Open opens and initializes the reader named by cfg
func Open(ctx context.Context, cfg config.Config, open Opener) (Session, error) {
	if cfg.Reader == config.ReaderPCSC {
		r, err := pcsc.Open(cfg.DevicePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open PC/SC reader: %w", err)
		}
		return r, nil
	}

	if open == nil {
		open = transport.Open
	}
	kind, err := transport.ParseKind(cfg.Transport)
	if err != nil {
		return nil, err
	}
	t, err := open(ctx, kind, cfg.DevicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s transport: %w", kind, err)
	}

	device, err := pn532.New(pn532.NewRetryTransport(t, commandRetry),
		pn532.WithInitAttempts(cfg.InitAttempts),
		pn532.WithDiscoveryTimeout(cfg.DiscoveryTimeout),
	)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	if err := device.InitContext(ctx); err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("failed to initialize PN532: %w", err)
	}
	return device, nil
}
