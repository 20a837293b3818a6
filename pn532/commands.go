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

package pn532

// PN532 command codes
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSamConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

// MIFARE Classic commands carried in InDataExchange
const (
	mifareCmdAuthA = 0x60
	mifareCmdRead  = 0x30
	mifareCmdWrite = 0xA0
)

// SAMConfiguration normal mode, 50ms*0x14 virtual card timeout, use IRQ
var samNormalMode = []byte{0x01, 0x14, 0x01}

// RFConfiguration items
const (
	rfItemMaxRetries = 0x05
	// retries for ATR_REQ and PSL_REQ in the MaxRetries item
	rfRetriesATR = 0xFF
	rfRetriesPSL = 0x01
)

// InListPassiveTarget parameters: one target, 106 kbps type A
const (
	maxTargets    = 0x01
	brTy106TypeA  = 0x00
	sakISO14443_4 = 0x20
)

// inDataExchangeTarget is the logical target number used for data exchange.
// The PN532 numbers the first listed target 1 and libnfc always uses it.
const inDataExchangeTarget = 0x01

// maxExchangeLen is the largest payload that fits a normal frame together
// with TFI, command and target bytes.
const maxExchangeLen = 252

// PN532 IC identifier reported by GetFirmwareVersion
const pn532IC = 0x32
