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

// Package config loads the terminal configuration from DOORTERM_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvReader            = "DOORTERM_READER"
	EnvTransport         = "DOORTERM_TRANSPORT"
	EnvDevicePath        = "DOORTERM_DEVICE_PATH"
	EnvServerURL         = "DOORTERM_SERVER_URL"
	EnvStatusPath        = "DOORTERM_STATUS_PATH"
	EnvRootCAFile        = "DOORTERM_ROOT_CA_FILE"
	EnvPayloadFormat     = "DOORTERM_PAYLOAD_FORMAT"
	EnvHTTPTimeoutMS     = "DOORTERM_HTTP_TIMEOUT_MS"
	EnvDiscoveryTimeout  = "DOORTERM_DISCOVERY_TIMEOUT_MS"
	EnvInitAttempts      = "DOORTERM_INIT_ATTEMPTS"
	EnvRequestsPerSecond = "DOORTERM_REQUESTS_PER_SECOND"
	EnvDebug             = "DOORTERM_DEBUG"

	ReaderPN532 = "pn532"
	ReaderPCSC  = "pcsc"

	PayloadCurrent = "current"
	PayloadLegacy  = "legacy"

	DefaultStatusPath   = "esp32/status"
	DefaultDevicePath   = "/dev/spidev0.0"
	DefaultHTTPTimeout  = 10 * time.Second
	DefaultDiscovery    = 10 * time.Second
	DefaultInitAttempts = 10
	MaxInitAttempts     = 100
)

// Config holds terminal runtime configuration
type Config struct {
	Reader        string
	Transport     string
	DevicePath    string
	ServerURL     string
	StatusPath    string
	RootCAFile    string
	PayloadFormat string
	// RequestsPerSecond throttles server requests; 0 disables throttling
	RequestsPerSecond float64
	HTTPTimeout       time.Duration
	DiscoveryTimeout  time.Duration
	InitAttempts      int
	Debug             bool
}

// LoadFromEnv loads and validates configuration from environment variables.
func LoadFromEnv() (Config, error) {
	return load(os.Getenv)
}

// FromEnv reads the environment without validating it, for callers that
// overlay flags first.
func FromEnv() Config {
	return read(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := read(getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func read(getenv func(string) string) Config {
	e := env(getenv)
	reader := strings.ToLower(e.orDefault(EnvReader, ReaderPN532))
	// For PC/SC the path is a reader name; empty selects the first reader.
	devicePath := e.get(EnvDevicePath)
	if devicePath == "" && reader == ReaderPN532 {
		devicePath = DefaultDevicePath
	}
	return Config{
		Reader:            reader,
		Transport:         strings.ToLower(e.orDefault(EnvTransport, "spi")),
		DevicePath:        devicePath,
		ServerURL:         e.get(EnvServerURL),
		StatusPath:        e.orDefault(EnvStatusPath, DefaultStatusPath),
		RootCAFile:        e.get(EnvRootCAFile),
		PayloadFormat:     strings.ToLower(e.orDefault(EnvPayloadFormat, PayloadCurrent)),
		RequestsPerSecond: e.floatOrDefault(EnvRequestsPerSecond, 0),
		HTTPTimeout:       e.millisOrDefault(EnvHTTPTimeoutMS, DefaultHTTPTimeout),
		DiscoveryTimeout:  e.millisOrDefault(EnvDiscoveryTimeout, DefaultDiscovery),
		InitAttempts:      e.intOrDefault(EnvInitAttempts, DefaultInitAttempts),
		Debug:             e.boolOrDefault(EnvDebug, false),
	}
}

// Validate checks that the configuration is coherent.
func (c Config) Validate() error {
	if err := c.ValidateReader(); err != nil {
		return err
	}
	if c.ServerURL == "" {
		return fmt.Errorf("invalid %s: must not be empty", EnvServerURL)
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("invalid %s: must be an http:// or https:// URL", EnvServerURL)
	}
	if c.RootCAFile != "" && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("invalid %s: requires an https:// %s", EnvRootCAFile, EnvServerURL)
	}
	if c.PayloadFormat != PayloadCurrent && c.PayloadFormat != PayloadLegacy {
		return fmt.Errorf("invalid %s: must be %q or %q", EnvPayloadFormat, PayloadCurrent, PayloadLegacy)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvHTTPTimeoutMS)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid %s: must be >= 0", EnvRequestsPerSecond)
	}
	return nil
}

// ValidateReader checks only the reader settings, for tools that never
// contact the server.
func (c Config) ValidateReader() error {
	switch c.Reader {
	case ReaderPN532:
		switch c.Transport {
		case "spi", "i2c", "uart":
		default:
			return fmt.Errorf("invalid %s: must be spi, i2c or uart", EnvTransport)
		}
		if c.DevicePath == "" {
			return fmt.Errorf("invalid %s: must not be empty", EnvDevicePath)
		}
	case ReaderPCSC:
	default:
		return fmt.Errorf("invalid %s: must be %q or %q", EnvReader, ReaderPN532, ReaderPCSC)
	}
	if c.DiscoveryTimeout <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvDiscoveryTimeout)
	}
	if c.InitAttempts < 1 || c.InitAttempts > MaxInitAttempts {
		return fmt.Errorf("invalid %s: must be in range 1..%d", EnvInitAttempts, MaxInitAttempts)
	}
	return nil
}

type env func(string) string

func (e env) get(key string) string {
	return strings.TrimSpace(e(key))
}

func (e env) orDefault(key, fallback string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return fallback
}

// intOrDefault returns -1 for unparsable values so Validate rejects them
func (e env) intOrDefault(key string, fallback int) int {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func (e env) millisOrDefault(key string, fallback time.Duration) time.Duration {
	if e.get(key) == "" {
		return fallback
	}
	n := e.intOrDefault(key, 0)
	if n < 0 {
		return -1
	}
	return time.Duration(n) * time.Millisecond
}

func (e env) floatOrDefault(key string, fallback float64) float64 {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return -1
	}
	return f
}

func (e env) boolOrDefault(key string, fallback bool) bool {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
