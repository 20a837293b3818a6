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

// Package terminal runs the door terminal: it ties token acquisition and
// enrollment to the authorization server and reports every outcome on a
// display.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/nfcgate/doorterm"
	"github.com/nfcgate/doorterm/authclient"
	"github.com/nfcgate/doorterm/polling"
)

// Operator messages
const (
	MsgPresentToken = "Present card or phone"
	MsgPresentCard  = "Present card to enroll"
	MsgNoToken      = "No card found"
	MsgNotEnrolled  = "Card not enrolled"
	MsgCardEnrolled = "Card enrolled"
	MsgWriteFailed  = "Write failed"
	MsgRequesting   = "Requesting token"
	MsgBadToken     = "Unreadable token"
)

// TokenReader acquires and enrolls tokens. *doorterm.Protocol implements it.
type TokenReader interface {
	AcquireToken(ctx context.Context, timeout time.Duration) (doorterm.Acquisition, error)
	EnrollToken(ctx context.Context, token doorterm.Token, timeout time.Duration) error
}

// Authorizer talks to the authorization server. *authclient.Client
// implements it.
type Authorizer interface {
	Submit(ctx context.Context, req authclient.Request) (authclient.Response, error)
	PostStatus(ctx context.Context, success bool) authclient.Response
}

// Outcome is the result of one terminal operation
type Outcome struct {
	Err         error
	Action      authclient.Action
	Message     string
	Acquisition doorterm.Acquisition
	Response    authclient.Response
	OK          bool
}

// Option configures a Terminal
type Option func(*Terminal)

// WithLogger sets the terminal logger
func WithLogger(logger *log.Logger) Option {
	return func(t *Terminal) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithReadTimeout bounds each acquisition and enrollment
func WithReadTimeout(timeout time.Duration) Option {
	return func(t *Terminal) {
		if timeout > 0 {
			t.readTimeout = timeout
		}
	}
}

// WithPollingConfig sets the presence loop timings used by Run
func WithPollingConfig(cfg *polling.Config) Option {
	return func(t *Terminal) {
		if cfg != nil {
			t.polling = cfg
		}
	}
}

// Terminal serializes operator actions over one reader
type Terminal struct {
	reader      TokenReader
	auth        Authorizer
	display     Display
	logger      *log.Logger
	polling     *polling.Config
	readTimeout time.Duration
	mu          sync.Mutex
}

// New creates a terminal and initializes display when it needs it
func New(reader TokenReader, auth Authorizer, display Display, opts ...Option) (*Terminal, error) {
	if in, ok := display.(initializer); ok {
		if err := in.Init(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDisplayInit, err)
		}
	}
	t := &Terminal{
		reader:      reader,
		auth:        auth,
		display:     display,
		logger:      log.New(io.Discard, "", 0),
		polling:     polling.DefaultConfig(),
		readTimeout: doorterm.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Create asks the server for a new token and writes it to a card. The
// card is only written after the server has issued the token, and the
// write result is reported back through the status callback.
func (t *Terminal) Create(ctx context.Context) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Outcome{Action: authclient.ActionCreate}
	t.show(MsgRequesting)
	resp, err := t.auth.Submit(ctx, authclient.Request{Action: authclient.ActionCreate})
	if err != nil {
		return t.fail(out, err.Error(), err)
	}
	out.Response = resp
	if resp.Status != authclient.StatusCreated {
		return t.fail(out, resp.Message, nil)
	}

	token, err := doorterm.TokenFromBytes(resp.Token)
	if err != nil {
		return t.fail(out, resp.Message, err)
	}

	t.show(MsgPresentCard)
	err = t.reader.EnrollToken(ctx, token, t.readTimeout)
	if status := t.auth.PostStatus(ctx, err == nil); !status.OK() {
		t.logger.Printf("status callback: %s", status.Message)
	}
	if err != nil {
		t.logger.Printf("enrollment failed: %v", err)
		return t.fail(out, MsgWriteFailed, err)
	}

	out.Acquisition = doorterm.Acquisition{Token: token, Device: doorterm.DeviceCard}
	out.OK = true
	out.Message = MsgCardEnrolled
	t.show(MsgCardEnrolled)
	return out
}

// Login reads a token and asks the server to open the door
func (t *Terminal) Login(ctx context.Context) Outcome {
	return t.readAndSubmit(ctx, authclient.ActionLogin)
}

// Remove reads a token and asks the server to revoke it
func (t *Terminal) Remove(ctx context.Context) Outcome {
	return t.readAndSubmit(ctx, authclient.ActionRemove)
}

func (t *Terminal) readAndSubmit(ctx context.Context, action authclient.Action) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.show(MsgPresentToken)
	acq, err := t.reader.AcquireToken(ctx, t.readTimeout)
	if err != nil {
		return t.fail(Outcome{Action: action}, MsgNoToken, err)
	}
	return t.submit(ctx, action, acq)
}

// submit sends an acquired token. Callers hold t.mu.
func (t *Terminal) submit(ctx context.Context, action authclient.Action, acq doorterm.Acquisition) Outcome {
	out := Outcome{Action: action, Acquisition: acq}
	if acq.IsBlank() {
		return t.fail(out, MsgNotEnrolled, nil)
	}

	resp, err := t.auth.Submit(ctx, authclient.Request{
		Action: action,
		Token:  acq.Token.Bytes(),
		Device: string(acq.Device),
	})
	if errors.Is(err, authclient.ErrInvalidToken) {
		return t.fail(out, MsgBadToken, err)
	}
	if err != nil {
		return t.fail(out, err.Error(), err)
	}
	out.Response = resp
	out.OK = resp.OK()
	out.Message = resp.Message
	t.logger.Printf("%s from %s: %s", action, acq.Device, resp.Status)
	t.show(resp.Message)
	return out
}

// Run logs in every token presented until ctx ends. Manual operations may
// run concurrently; they are serialized with the loop.
func (t *Terminal) Run(ctx context.Context) error {
	actor := polling.NewActor(lockedReader{t}, t.polling, polling.Callbacks{
		OnToken: func(ctx context.Context, acq doorterm.Acquisition) error {
			t.mu.Lock()
			defer t.mu.Unlock()
			if out := t.submit(ctx, authclient.ActionLogin, acq); !out.OK {
				return errors.New(out.Message)
			}
			return nil
		},
		OnRemoved: func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.show(MsgPresentToken)
		},
		OnError: func(err error) {
			t.logger.Printf("acquisition failed: %v", err)
		},
	})

	t.show(MsgPresentToken)
	err := actor.Run(ctx)
	m := actor.GetMetrics()
	t.logger.Printf("presence loop stopped after %d polls, %d tokens, %d errors",
		m.PollCycles, m.TokensDetected, m.PollErrors)
	return err
}

// lockedReader serializes the presence loop's reads with manual operations
type lockedReader struct {
	t *Terminal
}

func (r lockedReader) AcquireToken(ctx context.Context, timeout time.Duration) (doorterm.Acquisition, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	return r.t.reader.AcquireToken(ctx, timeout)
}

func (t *Terminal) fail(out Outcome, msg string, err error) Outcome {
	out.OK = false
	out.Err = err
	out.Message = msg
	t.show(msg)
	return out
}

func (t *Terminal) show(msg string) {
	if err := t.display.Show(msg); err != nil {
		t.logger.Printf("display: %v", err)
	}
}
