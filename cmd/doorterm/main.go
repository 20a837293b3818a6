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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nfcgate/doorterm"
	"github.com/nfcgate/doorterm/authclient"
	"github.com/nfcgate/doorterm/internal/config"
	"github.com/nfcgate/doorterm/internal/session"
	"github.com/nfcgate/doorterm/pn532"
	"github.com/nfcgate/doorterm/terminal"
)

const usage = `usage: doorterm [flags] <command>

commands:
  login    read a card or phone and request door access
  create   request a new token and enroll it on a blank card
  remove   read a card and revoke its token
  run      poll the reader and log in every presented token

flags:
`

type flags struct {
	reader      *string
	transport   *string
	device      *string
	server      *string
	format      *string
	readTimeout *time.Duration
	debug       *bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, error) {
	f := &flags{
		reader:      fs.String("reader", "", "Reader type: pn532 or pcsc (overrides "+config.EnvReader+")"),
		transport:   fs.String("transport", "", "PN532 link: spi, i2c or uart (overrides "+config.EnvTransport+")"),
		device:      fs.String("device", "", "Device path, \"auto\" for I2C, or PC/SC reader name"),
		server:      fs.String("server", "", "Authorization server URL (overrides "+config.EnvServerURL+")"),
		format:      fs.String("payload", "", "Login payload format: current or legacy"),
		readTimeout: fs.Duration("timeout", doorterm.DefaultTimeout, "Timeout for card or phone detection"),
		debug:       fs.Bool("debug", false, "Enable PN532 debug output"),
	}
	fs.Usage = func() {
		_, _ = fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// overlay applies the flags that were set on top of the environment
// configuration.
func (f *flags) overlay(cfg config.Config) (config.Config, error) {
	if *f.reader != "" {
		cfg.Reader = strings.ToLower(*f.reader)
		if cfg.Reader == config.ReaderPCSC && cfg.DevicePath == config.DefaultDevicePath {
			cfg.DevicePath = ""
		}
	}
	if *f.transport != "" {
		cfg.Transport = strings.ToLower(*f.transport)
	}
	if *f.device != "" {
		cfg.DevicePath = *f.device
	}
	if *f.server != "" {
		cfg.ServerURL = *f.server
	}
	if *f.format != "" {
		cfg.PayloadFormat = strings.ToLower(*f.format)
	}
	cfg.Debug = cfg.Debug || *f.debug
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newAuthClient(cfg config.Config, logger *log.Logger) (*authclient.Client, error) {
	return authclient.New(authclient.Config{
		BaseURL:           cfg.ServerURL,
		StatusPath:        cfg.StatusPath,
		RootCAFile:        cfg.RootCAFile,
		PayloadFormat:     authclient.PayloadFormat(cfg.PayloadFormat),
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             1,
	}, authclient.WithLogger(logger))
}

func runCommand(ctx context.Context, term *terminal.Terminal, command string) (terminal.Outcome, error) {
	switch command {
	case "login":
		return term.Login(ctx), nil
	case "create":
		return term.Create(ctx), nil
	case "remove":
		return term.Remove(ctx), nil
	case "run":
		_, _ = fmt.Println("Waiting for cards and phones, Ctrl-C to stop...")
		err := term.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		return terminal.Outcome{OK: err == nil, Err: err}, err
	default:
		return terminal.Outcome{}, fmt.Errorf("unknown command %q", command)
	}
}

func printOutcome(out terminal.Outcome) {
	if out.Action == "" {
		return
	}
	if !out.Acquisition.Token.IsZero() {
		_, _ = fmt.Printf("%s token %s\n", out.Acquisition.Device, out.Acquisition.Token.Hex())
	}
	if out.Response.HTTPStatus != 0 {
		_, _ = fmt.Printf("Server: %s (HTTP %d, %s)\n", out.Response.Message, out.Response.HTTPStatus, out.Response.Status)
	}
	if out.Err != nil {
		_, _ = fmt.Printf("%s failed: %v\n", out.Action, out.Err)
		return
	}
	_, _ = fmt.Printf("%s: %s\n", out.Action, out.Message)
}

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("doorterm", flag.ContinueOnError)
	f, err := parseFlags(fs, args)
	if err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	cfg, err := f.overlay(config.FromEnv())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}
	if cfg.Debug {
		pn532.SetDebugEnabled(true)
	}

	logger := log.New(stdout, "[terminal] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth, err := newAuthClient(cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to configure server client: %v\n", err)
		return 1
	}

	s, err := session.Open(ctx, cfg, nil)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to open reader: %v\n", err)
		return 1
	}
	defer func() { _ = s.Close() }()

	protocol := doorterm.NewProtocol(s, doorterm.WithLogger(logger))
	term, err := terminal.New(protocol, auth, terminal.NewConsoleDisplay(logger),
		terminal.WithLogger(logger),
		terminal.WithReadTimeout(*f.readTimeout),
	)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to start terminal: %v\n", err)
		return 1
	}

	out, err := runCommand(ctx, term, fs.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	printOutcome(out)
	if !out.OK {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}
