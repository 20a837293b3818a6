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

// Package transport opens a PN532 transport by name
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nfcgate/doorterm/detection/i2c"
	"github.com/nfcgate/doorterm/pn532"
	i2ctransport "github.com/nfcgate/doorterm/transport/i2c"
	"github.com/nfcgate/doorterm/transport/spi"
	"github.com/nfcgate/doorterm/transport/uart"
)

// Kind names a physical link to the PN532
type Kind string

// Supported kinds
const (
	KindSPI  Kind = "spi"
	KindI2C  Kind = "i2c"
	KindUART Kind = "uart"
)

// AutoPath asks Open to locate the device itself. Only I2C supports it.
const AutoPath = "auto"

// ErrUnknownKind is returned for a transport name Open does not know
var ErrUnknownKind = errors.New("unknown transport")

// ParseKind validates a transport name
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSPI, KindI2C, KindUART:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Open opens the transport of kind at path
func Open(ctx context.Context, kind Kind, path string) (pn532.Transport, error) {
	var (
		t   pn532.Transport
		err error
	)
	switch kind {
	case KindSPI:
		t, err = spi.New(path)
	case KindI2C:
		if path == "" || path == AutoPath {
			found, err := i2c.Find(ctx, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", pn532.ErrReaderNotFound, err)
			}
			path = found
		}
		t, err = i2ctransport.New(path)
	case KindUART:
		t, err = uart.New(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
