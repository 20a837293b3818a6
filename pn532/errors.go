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
	"errors"
	"fmt"
)

// Transport errors
var (
	ErrTransportTimeout    = errors.New("transport timeout")
	ErrTransportRead       = errors.New("transport read failed")
	ErrTransportWrite      = errors.New("transport write failed")
	ErrTransportClosed     = errors.New("transport closed")
	ErrCommunicationFailed = errors.New("communication failed")
	ErrNoACK               = errors.New("no ACK received")
	ErrFrameCorrupted      = errors.New("frame corrupted")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
)

// Device errors
var (
	ErrReaderNotFound   = errors.New("PN532 reader not found")
	ErrNotInitialized   = errors.New("PN532 session not initialized")
	ErrInvalidResponse  = errors.New("invalid response")
	ErrDataTooLarge     = errors.New("data too large")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Session errors
var (
	ErrNoTargetDetected   = errors.New("no target detected")
	ErrNoTarget           = errors.New("no target selected")
	ErrNotExchangeCapable = errors.New("target does not support ISO14443-4 data exchange")
	ErrAuthRejected       = errors.New("authentication rejected by tag")
	ErrNotAuthenticated   = errors.New("block is outside the authenticated sector")
)

// ErrorType classifies transport failures
type ErrorType int

const (
	// ErrorTypePermanent errors will not go away on retry
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may succeed on retry
	ErrorTypeTransient
	// ErrorTypeTimeout errors are timeouts, usually retryable
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// TransportError carries the operation and port a transport failure
// happened on, and whether retrying makes sense.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a TransportError; retryability follows the type.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Err:       err,
		Op:        op,
		Port:      port,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a retryable timeout error
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewNoACKError creates a retryable missing-ACK error
func NewNoACKError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNoACK, ErrorTypeTransient)
}

// NewFrameCorruptedError creates a retryable corrupted frame error
func NewFrameCorruptedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrFrameCorrupted, ErrorTypeTransient)
}

// NewDataTooLargeError creates a permanent error for oversized payloads
func NewDataTooLargeError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrDataTooLarge, ErrorTypePermanent)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrCommunicationFailed),
		errors.Is(err, ErrNoACK),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrChecksumMismatch):
		return true
	default:
		return false
	}
}

// GetErrorType classifies err.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}
	switch {
	case errors.Is(err, ErrTransportTimeout):
		return ErrorTypeTimeout
	case IsRetryable(err):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// PN532 error codes returned in the status byte of InDataExchange and
// friends (user manual table 7.1)
const (
	statusTimeout       = 0x01
	statusCRC           = 0x02
	statusParity        = 0x03
	statusFraming       = 0x05
	statusBufferOverrun = 0x07
	statusMifareAuth    = 0x14
	statusBadParameter  = 0x27
	statusNotPresent    = 0x2B
)

var statusNames = map[byte]string{
	statusTimeout:       "target timeout",
	statusCRC:           "CRC error",
	statusParity:        "parity error",
	statusFraming:       "framing error",
	statusBufferOverrun: "buffer overrun",
	statusMifareAuth:    "MIFARE authentication error",
	statusBadParameter:  "invalid parameter",
	statusNotPresent:    "target released",
}

// CommandError is a non-zero status byte returned by the PN532 for a
// command that reached the tag. These are tag-level failures (NACK,
// wrong key, tag gone), not transport failures.
type CommandError struct {
	Cmd    byte
	Status byte
}

func (e *CommandError) Error() string {
	name, ok := statusNames[e.Status]
	if !ok {
		name = "unknown error"
	}
	return fmt.Sprintf("PN532 command 0x%02X failed with status 0x%02X (%s)", e.Cmd, e.Status, name)
}

// Is matches the session sentinels the status codes correspond to.
func (e *CommandError) Is(target error) bool {
	switch target {
	case ErrAuthRejected:
		return e.Status == statusMifareAuth
	case ErrNoTargetDetected:
		return e.Status == statusNotPresent
	default:
		return false
	}
}

// IsCommandError reports whether err carries a PN532 status byte and returns it.
func IsCommandError(err error) (byte, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Status, true
	}
	return 0, false
}
