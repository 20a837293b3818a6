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

package polling

import (
	"context"
	"encoding/hex"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nfcgate/doorterm"
)

// Acquirer reads one token from the field
type Acquirer interface {
	AcquireToken(ctx context.Context, timeout time.Duration) (doorterm.Acquisition, error)
}

// Callbacks are invoked from the polling goroutine
type Callbacks struct {
	// OnToken runs once per presentation of a token
	OnToken func(ctx context.Context, acq doorterm.Acquisition) error
	// OnRemoved runs when the handled token has left the field
	OnRemoved func()
	// OnError receives acquisition failures other than an empty field
	OnError func(err error)
}

// Metrics tracks operational counters of an Actor
type Metrics struct {
	PollCycles      int64         // Total number of polling cycles
	PollErrors      int64         // Acquisitions that failed with a real error
	TokensDetected  int64         // Presentations reported through OnToken
	CallbackErrors  int64         // OnToken failures
	LastPollLatency time.Duration // Duration of last acquisition
}

// Actor polls an Acquirer until its context ends
type Actor struct {
	acquirer  Acquirer
	config    *Config
	callbacks Callbacks
	state     TokenState
	now       func() time.Time
	// Atomic counters for metrics
	pollCycles      int64
	tokensDetected  int64
	pollErrors      int64
	callbackErrors  int64
	lastPollLatency int64 // in nanoseconds
	// Adaptive polling state
	currentInterval int64 // in nanoseconds
	lastDetection   int64 // UnixNano of the last token
}

// NewActor creates an actor. A nil config uses DefaultConfig.
func NewActor(acquirer Acquirer, config *Config, callbacks Callbacks) *Actor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Actor{
		acquirer:        acquirer,
		config:          config,
		callbacks:       callbacks,
		now:             time.Now,
		currentInterval: config.PollInterval.Nanoseconds(),
		lastDetection:   time.Now().UnixNano(),
	}
}

// Run polls until ctx is done and returns ctx.Err()
func (a *Actor) Run(ctx context.Context) error {
	if err := a.config.Validate(); err != nil {
		return err
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			a.Poll(ctx)
			timer.Reset(a.CurrentInterval())
		}
	}
}

// Poll runs one acquisition cycle
func (a *Actor) Poll(ctx context.Context) {
	start := a.now()
	acq, err := a.acquirer.AcquireToken(ctx, a.config.AcquireTimeout)
	atomic.AddInt64(&a.pollCycles, 1)
	atomic.StoreInt64(&a.lastPollLatency, a.now().Sub(start).Nanoseconds())

	switch {
	case err == nil:
		a.handleToken(ctx, acq, start)
	case errors.Is(err, doorterm.ErrNotFound) && ctx.Err() == nil:
		a.handleEmpty(start)
	case ctx.Err() != nil:
		return
	default:
		atomic.AddInt64(&a.pollErrors, 1)
		if a.callbacks.OnError != nil {
			a.callbacks.OnError(err)
		}
	}
	a.adjustPollInterval()
}

func (a *Actor) handleToken(ctx context.Context, acq doorterm.Acquisition, now time.Time) {
	atomic.StoreInt64(&a.lastDetection, now.UnixNano())
	key := tokenKey(acq)
	if a.state.IsRepeat(key) {
		a.state.TransitionToPresent(now)
		return
	}

	a.state.TransitionToHandling(key, now)
	atomic.AddInt64(&a.tokensDetected, 1)
	if a.callbacks.OnToken != nil {
		if err := a.callbacks.OnToken(ctx, acq); err != nil {
			atomic.AddInt64(&a.callbackErrors, 1)
		}
	}
	a.state.TransitionToPresent(a.now())
}

func (a *Actor) handleEmpty(now time.Time) {
	if !a.state.Expired(now, a.config.CardRemovalTimeout) {
		return
	}
	a.state.TransitionToIdle()
	if a.callbacks.OnRemoved != nil {
		a.callbacks.OnRemoved()
	}
}

// adjustPollInterval slows polling down after IdleAfter without a token
func (a *Actor) adjustPollInterval() {
	last := time.Unix(0, atomic.LoadInt64(&a.lastDetection))
	interval := a.config.PollInterval
	if a.config.IdleAfter > 0 && a.now().Sub(last) > a.config.IdleAfter {
		interval = a.config.IdleInterval
	}
	atomic.StoreInt64(&a.currentInterval, interval.Nanoseconds())
}

// State returns the presence state
func (a *Actor) State() DetectionState {
	return a.state.DetectionState
}

// GetMetrics returns current operational metrics
func (a *Actor) GetMetrics() Metrics {
	return Metrics{
		PollCycles:      atomic.LoadInt64(&a.pollCycles),
		PollErrors:      atomic.LoadInt64(&a.pollErrors),
		TokensDetected:  atomic.LoadInt64(&a.tokensDetected),
		CallbackErrors:  atomic.LoadInt64(&a.callbackErrors),
		LastPollLatency: time.Duration(atomic.LoadInt64(&a.lastPollLatency)),
	}
}

// CurrentInterval returns the current adaptive polling interval
func (a *Actor) CurrentInterval() time.Duration {
	return time.Duration(atomic.LoadInt64(&a.currentInterval))
}

// tokenKey identifies a presentation: the same token from the same
// device kind.
func tokenKey(acq doorterm.Acquisition) string {
	return string(acq.Device) + ":" + hex.EncodeToString(acq.Token[:])
}
