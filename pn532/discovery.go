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

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DiscoverTarget polls for an ISO14443A target until one answers, timeout
// elapses or ctx is done. A non-positive timeout uses
// DeviceConfig.DiscoveryTimeout. It returns the target UID, or an error
// wrapping ErrNoTargetDetected.
func (d *Device) DiscoverTarget(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if err := d.requireReady(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = d.config.DiscoveryTimeout
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d.releaseTarget(pollCtx)
	d.state = StateDiscovering
	defer d.leaveDiscovering()

	for {
		target, err := d.listPassiveTarget(pollCtx)
		if err == nil {
			d.target = target
			debugf("target found: UID %X SAK 0x%02X", target.UID, target.SAK)
			return append([]byte(nil), target.UID...), nil
		}
		if !errors.Is(err, ErrNoTargetDetected) && pollCtx.Err() == nil && !IsRetryable(err) {
			return nil, fmt.Errorf("target discovery failed: %w", err)
		}

		if err := sleepCtx(pollCtx, d.config.DiscoveryInterval); err != nil {
			return nil, discoveryStopped(ctx)
		}
	}
}

// DiscoverPeer polls for a phone in card emulation: at most PeerPollAttempts
// polls, PeerPollInterval apart. A target without ISO14443-4 support ends
// the poll at once with ErrNotExchangeCapable, leaving it selected so a
// MIFARE path can follow.
func (d *Device) DiscoverPeer(ctx context.Context) ([]byte, error) {
	if err := d.requireReady(); err != nil {
		return nil, err
	}
	d.releaseTarget(ctx)
	d.state = StateDiscovering
	defer d.leaveDiscovering()

	for attempt := 0; attempt < d.config.PeerPollAttempts; attempt++ {
		target, err := d.listPassiveTarget(ctx)
		if err == nil {
			d.target = target
			if !target.SupportsExchange() {
				debugf("target %X (SAK 0x%02X) is not an ISO14443-4 peer", target.UID, target.SAK)
				return nil, ErrNotExchangeCapable
			}
			debugf("peer found: UID %X", target.UID)
			return append([]byte(nil), target.UID...), nil
		}
		if !errors.Is(err, ErrNoTargetDetected) && ctx.Err() == nil && !IsRetryable(err) {
			return nil, fmt.Errorf("peer discovery failed: %w", err)
		}

		if err := sleepCtx(ctx, d.config.PeerPollInterval); err != nil {
			return nil, discoveryStopped(ctx)
		}
	}
	return nil, ErrNoTargetDetected
}

func (d *Device) leaveDiscovering() {
	if d.state == StateDiscovering {
		d.state = StateReady
	}
}

// releaseTarget drops the previous target in the chip before a new poll.
// Failures only mean there was nothing to release.
func (d *Device) releaseTarget(ctx context.Context) {
	if d.target == nil {
		return
	}
	d.clearTarget()
	if _, err := d.sendCommand(ctx, cmdInRelease, []byte{0x00}); err != nil {
		debugf("InRelease failed: %v", err)
	}
}

// listPassiveTarget runs one InListPassiveTarget for a single type A target.
func (d *Device) listPassiveTarget(ctx context.Context) (*Target, error) {
	resp, err := d.sendCommand(ctx, cmdInListPassiveTarget, []byte{maxTargets, brTy106TypeA})
	if err != nil {
		return nil, err
	}
	if len(resp) < 1 {
		return nil, fmt.Errorf("%w: empty InListPassiveTarget response", ErrInvalidResponse)
	}
	if resp[0] == 0 {
		return nil, ErrNoTargetDetected
	}
	return parseTargetData(resp[1:])
}

// parseTargetData decodes one type A target: Tg, SENS_RES (2), SEL_RES,
// NFCIDLength, NFCID, then optionally ATS length and ATS.
func parseTargetData(data []byte) (*Target, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: target data too short (%d bytes)", ErrInvalidResponse, len(data))
	}
	uidLen := int(data[4])
	if uidLen != 4 && uidLen != 7 {
		return nil, fmt.Errorf("%w: unsupported UID length %d", ErrInvalidResponse, uidLen)
	}
	if len(data) < 5+uidLen {
		return nil, fmt.Errorf("%w: truncated UID", ErrInvalidResponse)
	}

	target := &Target{
		Number: data[0],
		ATQA:   uint16(data[1])<<8 | uint16(data[2]),
		SAK:    data[3],
		UID:    append([]byte(nil), data[5:5+uidLen]...),
	}
	if rest := data[5+uidLen:]; len(rest) > 1 {
		atsLen := int(rest[0])
		if atsLen > 1 && len(rest) >= atsLen {
			target.ATS = append([]byte(nil), rest[1:atsLen]...)
		}
	}
	return target, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// discoveryStopped reports why a poll loop ended early: the caller's
// context, or the poll's own timeout.
func discoveryStopped(parent context.Context) error {
	if err := parent.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("discovery cancelled: %w", err)
	}
	return ErrNoTargetDetected
}
