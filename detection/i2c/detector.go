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

// Package i2c finds a PN532 on the host's I2C buses
package i2c

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/nfcgate/doorterm/detection"
)

const (
	// DefaultPN532Address is the standard I2C address for PN532 (0x48 >> 1)
	DefaultPN532Address = 0x24

	busGlob = "/dev/i2c-*"
)

// Detect probes every I2C bus for a PN532 at DefaultPN532Address.
func Detect(ctx context.Context, ignorePaths []string) ([]detection.DeviceInfo, error) {
	matches, err := filepath.Glob(busGlob)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for I2C devices: %w", err)
	}
	buses := sortBuses(matches)

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		select {
		case <-ctx.Done():
			return devices, fmt.Errorf("%w: %w", detection.ErrDetectionCancelled, ctx.Err())
		default:
		}
		if detection.IsPathIgnored(bus, ignorePaths) {
			continue
		}
		found, err := probe(ctx, bus, DefaultPN532Address)
		if err != nil {
			return nil, err
		}
		if found {
			devices = append(devices, detection.DeviceInfo{
				Transport: "i2c",
				Path:      bus,
				Metadata: map[string]string{
					"address": fmt.Sprintf("0x%02X", DefaultPN532Address),
				},
			})
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// Find returns the first bus with a responding PN532
func Find(ctx context.Context, ignorePaths []string) (string, error) {
	devices, err := Detect(ctx, ignorePaths)
	if err != nil {
		return "", err
	}
	return devices[0].Path, nil
}

// sortBuses orders bus device nodes by bus number and drops anything that
// is not /dev/i2c-N.
func sortBuses(paths []string) []string {
	type bus struct {
		path   string
		number int
	}
	buses := make([]bus, 0, len(paths))
	for _, p := range paths {
		var n int
		if _, err := fmt.Sscanf(filepath.Base(p), "i2c-%d", &n); err != nil {
			continue
		}
		if filepath.Base(p) != fmt.Sprintf("i2c-%d", n) {
			continue
		}
		buses = append(buses, bus{path: p, number: n})
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].number < buses[j].number })

	out := make([]string, len(buses))
	for i, b := range buses {
		out[i] = b.path
	}
	return out
}
