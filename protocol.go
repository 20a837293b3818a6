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

package doorterm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/nfcgate/doorterm/mifare"
	"github.com/skythen/apdu"
)

const (
	// DefaultTimeout bounds one acquisition or enrollment
	DefaultTimeout = 10 * time.Second

	resetTimeout = 2 * time.Second
)

// DefaultAID is the application identifier the phone app registers
var DefaultAID = []byte{0xF0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

// Transceiver is one NFC reader session. pn532.Device and pcsc.Reader
// implement it.
type Transceiver interface {
	// DiscoverPeer looks for an ISO14443-4 target that accepts APDUs
	DiscoverPeer(ctx context.Context) ([]byte, error)
	// DiscoverTarget waits up to timeout for any ISO14443A target
	DiscoverTarget(ctx context.Context, timeout time.Duration) ([]byte, error)
	AuthenticateBlock(ctx context.Context, block int, keyType byte, key []byte) error
	ReadBlock(ctx context.Context, block int) ([]byte, error)
	WriteBlock(ctx context.Context, block int, data []byte) error
	ExchangeAPDU(ctx context.Context, apdu []byte) ([]byte, error)
	ResetContext(ctx context.Context) error
}

// Option configures a Protocol
type Option func(*Protocol)

// WithLogger sets the logger for per-interaction messages
func WithLogger(logger *log.Logger) Option {
	return func(p *Protocol) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithAID overrides the application identifier selected on phones
func WithAID(aid []byte) Option {
	return func(p *Protocol) {
		p.aid = append([]byte(nil), aid...)
	}
}

// Protocol runs token interactions over a Transceiver
type Protocol struct {
	session Transceiver
	logger  *log.Logger
	aid     []byte
}

// NewProtocol creates a Protocol over session
func NewProtocol(session Transceiver, opts ...Option) *Protocol {
	p := &Protocol{
		session: session,
		logger:  log.New(io.Discard, "", 0),
		aid:     DefaultAID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AcquireToken reads one token from whatever is in the field. A phone is
// tried first; otherwise a card is discovered and block 8 is read with the
// factory key. timeout bounds both paths together.
func (p *Protocol) AcquireToken(ctx context.Context, timeout time.Duration) (Acquisition, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if acq, ok := p.acquireFromPhone(ctx); ok {
		return acq, nil
	}

	acq, err := p.acquireFromCard(ctx)
	if err != nil {
		p.reset(ctx)
		return Acquisition{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return acq, nil
}

func (p *Protocol) acquireFromPhone(ctx context.Context) (Acquisition, bool) {
	uid, err := p.session.DiscoverPeer(ctx)
	if err != nil {
		p.logger.Printf("no phone: %v", err)
		return Acquisition{}, false
	}

	cmd, err := selectCommand(p.aid)
	if err != nil {
		p.logger.Printf("building SELECT: %v", err)
		return Acquisition{}, false
	}
	resp, err := p.session.ExchangeAPDU(ctx, cmd)
	if err != nil {
		p.logger.Printf("SELECT failed: %v", err)
		return Acquisition{}, false
	}
	if len(resp) < TokenSize {
		p.logger.Printf("phone refused SELECT: %s", describeReply(resp))
		return Acquisition{}, false
	}

	token, _ := TokenFromBytes(resp)
	p.logger.Printf("token read from phone\n%s", FormatHexASCII(token[:]))
	return Acquisition{Token: token, Device: DevicePhone, UID: uid}, true
}

func (p *Protocol) acquireFromCard(ctx context.Context) (Acquisition, error) {
	uid, err := p.openTokenSector(ctx)
	if err != nil {
		return Acquisition{}, err
	}
	data, err := p.session.ReadBlock(ctx, mifare.TokenBlock)
	if err != nil {
		return Acquisition{}, fmt.Errorf("read block %d: %w", mifare.TokenBlock, err)
	}
	token, err := TokenFromBytes(data)
	if err != nil {
		return Acquisition{}, err
	}
	p.logger.Printf("token read from card\n%s", FormatHexASCII(token[:]))
	return Acquisition{Token: token, Device: DeviceCard, UID: uid}, nil
}

// EnrollToken writes token to block 8 of a card and reads it back. Phones
// cannot be enrolled.
func (p *Protocol) EnrollToken(ctx context.Context, token Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.enroll(ctx, token); err != nil {
		p.reset(ctx)
		return fmt.Errorf("%w: %w", ErrEnrollFailed, err)
	}
	p.logger.Printf("token written to card")
	return nil
}

func (p *Protocol) enroll(ctx context.Context, token Token) error {
	if _, err := p.openTokenSector(ctx); err != nil {
		return err
	}
	if err := p.session.WriteBlock(ctx, mifare.TokenBlock, token[:]); err != nil {
		return fmt.Errorf("write block %d: %w", mifare.TokenBlock, err)
	}
	readBack, err := p.session.ReadBlock(ctx, mifare.TokenBlock)
	if err != nil {
		return fmt.Errorf("verify block %d: %w", mifare.TokenBlock, err)
	}
	if !bytes.Equal(readBack, token[:]) {
		return ErrVerifyMismatch
	}
	return nil
}

// openTokenSector discovers a card and authenticates the token block with
// the factory key B.
func (p *Protocol) openTokenSector(ctx context.Context) ([]byte, error) {
	remaining := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining = time.Until(deadline)
	}
	uid, err := p.session.DiscoverTarget(ctx, remaining)
	if err != nil {
		return nil, err
	}
	key := mifare.FactoryKey
	if err := p.session.AuthenticateBlock(ctx, mifare.TokenBlock, mifare.KeyB, key[:]); err != nil {
		return nil, fmt.Errorf("authenticate block %d: %w", mifare.TokenBlock, err)
	}
	return uid, nil
}

// reset recovers the session after a failed interaction. It runs even when
// ctx has expired.
func (p *Protocol) reset(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetTimeout)
	defer cancel()
	if err := p.session.ResetContext(ctx); err != nil {
		p.logger.Printf("reset failed: %v", err)
	}
}

// selectCommand builds SELECT by name for aid, expecting up to 256 bytes
func selectCommand(aid []byte) ([]byte, error) {
	capdu := apdu.Capdu{Cla: 0x00, Ins: 0xA4, P1: 0x04, P2: 0x00, Data: aid, Ne: 256}
	return capdu.Bytes()
}

func describeReply(resp []byte) string {
	rapdu, err := apdu.ParseRapdu(resp)
	if err != nil {
		return fmt.Sprintf("% X", resp)
	}
	return fmt.Sprintf("SW=%02X%02X", rapdu.SW1, rapdu.SW2)
}
