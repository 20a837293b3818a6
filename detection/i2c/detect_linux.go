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

//go:build linux

package i2c

import (
	"context"
	"errors"
	"time"

	"github.com/nfcgate/doorterm/internal/frame"
	"golang.org/x/sys/unix"
)

const (
	// I2CSlave is the ioctl command to set slave address
	I2CSlave = 0x0703

	// I2CFuncs is the ioctl command to get adapter functionality
	I2CFuncs = 0x0705

	// I2CFuncI2C indicates plain I2C support
	I2CFuncI2C = 0x00000001

	probeTimeout  = 100 * time.Millisecond
	probeInterval = 5 * time.Millisecond
	cmdFirmware   = 0x02
)

// probe sends GetFirmwareVersion to addr on busPath and reports whether a
// PN532 acknowledged it. Buses that cannot be opened are skipped.
func probe(ctx context.Context, busPath string, addr uint8) (bool, error) {
	fd, err := unix.Open(busPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return false, nil
	}
	defer func() { _ = unix.Close(fd) }()

	funcs, err := unix.IoctlGetUint32(fd, I2CFuncs)
	if err != nil || funcs&I2CFuncI2C == 0 {
		return false, nil
	}
	if err := unix.IoctlSetInt(fd, I2CSlave, int(addr)); err != nil {
		return false, nil
	}

	cmd, err := frame.Build(cmdFirmware, nil)
	if err != nil {
		return false, err
	}
	if _, err := unix.Write(fd, cmd); err != nil {
		// nothing acknowledged the address
		return false, nil
	}

	// every PN532 read starts with a status byte; bit 0 marks ready
	buf := make([]byte, 1+len(frame.AckFrame))
	deadline := time.Now().Add(probeTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false, nil
		}
		n, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return false, nil
		}
		if n == len(buf) && buf[0]&0x01 == 0x01 {
			return frame.IsACK(buf[1:]), nil
		}
		time.Sleep(probeInterval)
	}
	return false, nil
}
