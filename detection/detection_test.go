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

package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		ignore []string
		want   bool
	}{
		{name: "exact match", path: "/dev/i2c-1", ignore: []string{"/dev/i2c-1"}, want: true},
		{name: "case insensitive", path: "/dev/I2C-1", ignore: []string{"/dev/i2c-1"}, want: true},
		{name: "unclean entry", path: "/dev/i2c-1", ignore: []string{" /dev//i2c-1 "}, want: true},
		{name: "different bus", path: "/dev/i2c-2", ignore: []string{"/dev/i2c-1"}, want: false},
		{name: "empty entries skipped", path: "/dev/i2c-1", ignore: []string{""}, want: false},
		{name: "empty path", path: "", ignore: []string{""}, want: false},
		{name: "no list", path: "/dev/i2c-1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPathIgnored(tt.path, tt.ignore))
		})
	}
}
