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

/*
Package doorterm reads and enrolls access tokens for an NFC door terminal.

A token is a fixed 16-byte credential. Phones present it through an
ISO14443-4 application selected by AID; MIFARE Classic cards carry it in
block 8. A Protocol runs one interaction at a time over a Transceiver, which
both pn532.Device and pcsc.Reader implement.

Basic Usage:

	transport, err := spi.New("/dev/spidev0.0")
	if err != nil {
	    log.Fatal(err)
	}
	device, err := pn532.New(transport)
	if err != nil {
	    log.Fatal(err)
	}
	if err := device.Init(); err != nil {
	    log.Fatal(err)
	}

	proto := doorterm.NewProtocol(device)
	acq, err := proto.AcquireToken(ctx, 10*time.Second)
	if errors.Is(err, doorterm.ErrNotFound) {
	    // nothing in the field
	}
	fmt.Printf("%s token %s\n", acq.Device, acq.Token)

Enrollment writes a token to a card and reads it back:

	err := proto.EnrollToken(ctx, token, 10*time.Second)

Thread Safety:

A Protocol is not safe for concurrent use; the terminal package serializes
interactions.
*/
package doorterm
