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

package testing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nfcgate/doorterm/mifare"
)

// ErrUnsupportedCommand is returned for commands the simulator does not model
var ErrUnsupportedCommand = errors.New("simulator: unsupported command")

// Simulator answers PN532 commands for one virtual card and/or one virtual
// phone. When both are present the phone answers discovery. Its Handle
// method plugs into a mock transport's response func.
type Simulator struct {
	Card     *VirtualCard
	Phone    *VirtualPhone
	selected any
	mu       sync.Mutex
}

// NewSimulator creates a simulator with an empty field
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Handle answers one command
func (s *Simulator) Handle(cmd byte, args []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd {
	case CmdGetFirmwareVersion:
		return BuildFirmwareVersionResponse(), nil
	case CmdSAMConfiguration:
		return BuildSAMConfigurationResponse(), nil
	case CmdRFConfiguration:
		return BuildRFConfigurationResponse(), nil
	case CmdInRelease:
		s.release()
		return BuildReleaseResponse(), nil
	case CmdInListPassiveTarget:
		return s.listTarget(), nil
	case CmdInDataExchange:
		if len(args) < 2 {
			return BuildErrorResponse(cmd, StatusBadParam), nil
		}
		return s.exchange(args[1:]), nil
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedCommand, cmd)
	}
}

func (s *Simulator) release() {
	if card, ok := s.selected.(*VirtualCard); ok {
		card.Halt()
	}
	s.selected = nil
}

func (s *Simulator) listTarget() []byte {
	s.release()
	switch {
	case s.Phone != nil && s.Phone.Present:
		s.selected = s.Phone
		return BuildTargetResponse(SAKISO4, s.Phone.UID)
	case s.Card != nil && s.Card.Present:
		s.selected = s.Card
		s.Card.Select()
		return BuildTargetResponse(s.Card.SAK, s.Card.UID)
	default:
		return BuildNoTagResponse()
	}
}

func (s *Simulator) exchange(payload []byte) []byte {
	switch target := s.selected.(type) {
	case *VirtualPhone:
		if !target.Present {
			return BuildErrorResponse(CmdInDataExchange, StatusTimeout)
		}
		return BuildDataExchangeResponse(target.Transceive(payload))
	case *VirtualCard:
		if !target.Present {
			return BuildErrorResponse(CmdInDataExchange, StatusTimeout)
		}
		return s.mifare(target, payload)
	default:
		return BuildErrorResponse(CmdInDataExchange, StatusTimeout)
	}
}

func (*Simulator) mifare(card *VirtualCard, payload []byte) []byte {
	fail := func(code byte) []byte {
		card.Halt()
		return BuildErrorResponse(CmdInDataExchange, code)
	}

	switch {
	case (payload[0] == 0x60 || payload[0] == 0x61) && len(payload) == 2+mifare.KeySize+4:
		keyType := payload[0] - 0x60
		if err := card.Authenticate(int(payload[1]), keyType, payload[2:8], payload[8:12]); err != nil {
			return fail(StatusMifareAuth)
		}
		return BuildDataExchangeResponse(nil)
	case payload[0] == 0x30 && len(payload) == 2:
		data, err := card.ReadBlock(int(payload[1]))
		if err != nil {
			return fail(StatusMifareAuth)
		}
		return BuildDataExchangeResponse(data)
	case payload[0] == 0xA0 && len(payload) == 2+mifare.BlockSize:
		if err := card.WriteBlock(int(payload[1]), payload[2:]); err != nil {
			return fail(StatusMifareAuth)
		}
		return BuildDataExchangeResponse(nil)
	default:
		return BuildErrorResponse(CmdInDataExchange, StatusBadParam)
	}
}
