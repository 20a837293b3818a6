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

// Package detection locates PN532 readers attached to the host
package detection

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrNoDevicesFound is returned when no reader answered
	ErrNoDevicesFound = errors.New("no PN532 devices found")
	// ErrUnsupportedPlatform is returned where bus probing is not available
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
	// ErrDetectionCancelled is returned when the context ends mid-scan
	ErrDetectionCancelled = errors.New("detection cancelled")
)

// DeviceInfo describes one detected reader
type DeviceInfo struct {
	Metadata  map[string]string
	Transport string
	Path      string
}

// IsPathIgnored reports whether devicePath matches one of ignorePaths.
// Entries compare case-insensitively after path cleaning.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	normalized := normalizePath(devicePath)
	for _, p := range ignorePaths {
		if p == "" {
			continue
		}
		if normalizePath(p) == normalized {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	return strings.ToLower(filepath.Clean(strings.TrimSpace(p)))
}
