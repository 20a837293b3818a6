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

// Package pn532 drives an NXP PN532 NFC transceiver as a single-target
// session: initialization, ISO14443A target discovery, MIFARE Classic
// block access and ISO14443-4 APDU exchange.
package pn532

import (
	"context"
	"fmt"
	"time"
)

// State is the session state of a Device
type State int

const (
	// StateUninitialized is the state before InitContext succeeds
	StateUninitialized State = iota
	// StateReady means the transceiver is configured and idle
	StateReady
	// StateDiscovering means a discovery poll is in progress
	StateDiscovering
	// StateAuthenticated means one sector of the current target is unlocked
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDiscovering:
		return "discovering"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "uninitialized"
	}
}

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig bounds the firmware detection loop in InitContext
	RetryConfig *RetryConfig
	// Timeout is the transport timeout for a single command
	Timeout time.Duration
	// DiscoveryTimeout is used by DiscoverTarget when no timeout is given
	DiscoveryTimeout time.Duration
	// DiscoveryInterval is the pause between card discovery polls
	DiscoveryInterval time.Duration
	// PeerPollInterval and PeerPollAttempts bound DiscoverPeer
	PeerPollInterval time.Duration
	PeerPollAttempts int
	// PassiveActivationRetries is programmed into the RF MaxRetries item so a
	// single InListPassiveTarget returns when no target is in the field.
	PassiveActivationRetries byte
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig: &RetryConfig{
			MaxAttempts:       10,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2,
		},
		Timeout:                  1 * time.Second,
		DiscoveryTimeout:         10 * time.Second,
		DiscoveryInterval:        50 * time.Millisecond,
		PeerPollInterval:         10 * time.Millisecond,
		PeerPollAttempts:         500,
		PassiveActivationRetries: 0x01,
	}
}

// FirmwareVersion is the answer to GetFirmwareVersion
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (f *FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X firmware %d.%d", f.IC, f.Version, f.Revision)
}

// Target is the tag or peer found by the last discovery
type Target struct {
	UID    []byte
	ATS    []byte
	ATQA   uint16
	SAK    byte
	Number byte
}

// SupportsExchange reports whether the target speaks ISO14443-4.
func (t *Target) SupportsExchange() bool {
	return t.SAK&sakISO14443_4 != 0
}

// Device is a PN532 session.
//
// Thread Safety: Device is NOT thread-safe. All methods must be called from
// a single goroutine or protected with external synchronization.
type Device struct {
	transport       Transport
	config          *DeviceConfig
	firmwareVersion *FirmwareVersion
	target          *Target
	state           State
	authSector      int
}

// New creates a new PN532 device with the given transport
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	device := &Device{
		transport:  transport,
		config:     DefaultDeviceConfig(),
		authSector: -1,
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// State returns the current session state
func (d *Device) State() State {
	return d.state
}

// FirmwareVersion returns the version read by InitContext, or nil.
func (d *Device) FirmwareVersion() *FirmwareVersion {
	return d.firmwareVersion
}

// CurrentTarget returns a copy of the target found by the last discovery, or nil.
func (d *Device) CurrentTarget() *Target {
	if d.target == nil {
		return nil
	}
	t := *d.target
	t.UID = append([]byte(nil), d.target.UID...)
	t.ATS = append([]byte(nil), d.target.ATS...)
	return &t
}

// SetTimeout sets the transport timeout for a single command
func (d *Device) SetTimeout(timeout time.Duration) error {
	d.config.Timeout = timeout
	if err := d.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set transport timeout: %w", err)
	}
	return nil
}

// SetRetryConfig updates the retry configuration used by InitContext
func (d *Device) SetRetryConfig(config *RetryConfig) {
	d.config.RetryConfig = config
	if tr, ok := d.transport.(*RetryTransport); ok {
		tr.SetRetryConfig(config)
	}
}

// Init is InitContext with a background context
func (d *Device) Init() error {
	return d.InitContext(context.Background())
}

// InitContext detects the PN532 and puts it in normal mode. Firmware
// detection is retried with backoff up to RetryConfig.MaxAttempts times;
// when all attempts fail the returned error wraps ErrReaderNotFound.
func (d *Device) InitContext(ctx context.Context) error {
	var fw *FirmwareVersion
	err := RetryWithConfig(ctx, d.config.RetryConfig, func() error {
		v, err := d.GetFirmwareVersionContext(ctx)
		if err != nil {
			return err
		}
		fw = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReaderNotFound, err)
	}
	d.firmwareVersion = fw
	debugf("found chip PN5%02X, firmware %d.%d", fw.IC, fw.Version, fw.Revision)

	if err := d.configure(ctx); err != nil {
		return err
	}
	d.state = StateReady
	return nil
}

// Reset is ResetContext with a background context
func (d *Device) Reset() error {
	return d.ResetContext(context.Background())
}

// ResetContext re-applies the SAM and RF configuration and forgets the
// current target and authentication. It does not loop on failure.
func (d *Device) ResetContext(ctx context.Context) error {
	d.clearTarget()
	if err := d.configure(ctx); err != nil {
		d.state = StateUninitialized
		return fmt.Errorf("reset failed: %w", err)
	}
	d.state = StateReady
	return nil
}

// GetFirmwareVersion is GetFirmwareVersionContext with a background context
func (d *Device) GetFirmwareVersion() (*FirmwareVersion, error) {
	return d.GetFirmwareVersionContext(context.Background())
}

// GetFirmwareVersionContext queries the chip's firmware version.
func (d *Device) GetFirmwareVersionContext(ctx context.Context) (*FirmwareVersion, error) {
	resp, err := d.sendCommand(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get firmware version: %w", err)
	}
	if len(resp) < 4 {
		return nil, fmt.Errorf("%w: firmware version response too short (%d bytes)", ErrInvalidResponse, len(resp))
	}
	if resp[0] != pn532IC {
		return nil, fmt.Errorf("%w: unexpected IC 0x%02X", ErrInvalidResponse, resp[0])
	}
	return &FirmwareVersion{IC: resp[0], Version: resp[1], Revision: resp[2], Support: resp[3]}, nil
}

// Close closes the transport
func (d *Device) Close() error {
	d.clearTarget()
	d.state = StateUninitialized
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

func (d *Device) configure(ctx context.Context) error {
	if _, err := d.sendCommand(ctx, cmdSamConfiguration, samNormalMode); err != nil {
		return fmt.Errorf("SAM configuration failed: %w", err)
	}
	args := []byte{rfItemMaxRetries, rfRetriesATR, rfRetriesPSL, d.config.PassiveActivationRetries}
	if _, err := d.sendCommand(ctx, cmdRFConfiguration, args); err != nil {
		return fmt.Errorf("RF configuration failed: %w", err)
	}
	return nil
}

func (d *Device) requireReady() error {
	if d.state == StateUninitialized {
		return ErrNotInitialized
	}
	return nil
}

func (d *Device) clearTarget() {
	d.target = nil
	d.authSector = -1
	if d.state == StateAuthenticated {
		d.state = StateReady
	}
}

// sendCommand runs cmd through the transport and strips the response code.
func (d *Device) sendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	resp, err := sendContext(ctx, d.transport, cmd, args)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w: empty response to command 0x%02X", ErrInvalidResponse, cmd)
	}
	if resp[0] != cmd+1 {
		return nil, fmt.Errorf("%w: response code 0x%02X to command 0x%02X", ErrInvalidResponse, resp[0], cmd)
	}
	return resp[1:], nil
}
