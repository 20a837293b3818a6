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

package terminal

import (
	"errors"
	"io"
	"log"
)

// ErrDisplayInit is returned by New when the display cannot start. It is
// the only failure the terminal treats as fatal.
var ErrDisplayInit = errors.New("display initialization failed")

// Display shows one status message to the operator, replacing the last one
type Display interface {
	Show(msg string) error
}

// initializer is implemented by displays that need setup before use
type initializer interface {
	Init() error
}

// ConsoleDisplay writes messages to a logger
type ConsoleDisplay struct {
	logger *log.Logger
	last   string
}

// NewConsoleDisplay creates a display writing to logger. A nil logger
// discards output.
func NewConsoleDisplay(logger *log.Logger) *ConsoleDisplay {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ConsoleDisplay{logger: logger}
}

// Show implements Display
func (d *ConsoleDisplay) Show(msg string) error {
	d.last = msg
	d.logger.Println(msg)
	return nil
}

// Last returns the message currently shown
func (d *ConsoleDisplay) Last() string {
	return d.last
}
