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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nfcgate/doorterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	err error
	acq doorterm.Acquisition
}

// scriptedAcquirer returns queued results, then ErrNotFound
type scriptedAcquirer struct {
	results []result
	calls   int
	mu      sync.Mutex
}

func (s *scriptedAcquirer) AcquireToken(context.Context, time.Duration) (doorterm.Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.results) == 0 {
		return doorterm.Acquisition{}, doorterm.ErrNotFound
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.acq, r.err
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func card(b byte) result {
	var tok doorterm.Token
	for i := range tok {
		tok[i] = b
	}
	return result{acq: doorterm.Acquisition{Token: tok, Device: doorterm.DeviceCard}}
}

func notFound() result {
	return result{err: doorterm.ErrNotFound}
}

func newTestActor(acq Acquirer, cb Callbacks) (*Actor, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	a := NewActor(acq, DefaultConfig(), cb)
	a.now = clock.now
	a.lastDetection = clock.t.UnixNano()
	return a, clock
}

func TestActorReportsTokenOncePerPresentation(t *testing.T) {
	t.Parallel()

	acq := &scriptedAcquirer{results: []result{
		card(0xAA), card(0xAA), notFound(), card(0xAA), // still present: blip shorter than removal timeout
		notFound(), notFound(), // removed
		card(0xAA), // presented again
	}}
	var seen []doorterm.Token
	removed := 0
	a, clock := newTestActor(acq, Callbacks{
		OnToken: func(_ context.Context, acq doorterm.Acquisition) error {
			seen = append(seen, acq.Token)
			return nil
		},
		OnRemoved: func() { removed++ },
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		a.Poll(ctx)
		clock.advance(100 * time.Millisecond)
	}
	require.Len(t, seen, 1)
	assert.Equal(t, StateTokenPresent, a.State())

	clock.advance(2 * time.Second)
	a.Poll(ctx)
	assert.Equal(t, 1, removed)
	assert.Equal(t, StateIdle, a.State())

	a.Poll(ctx)
	assert.Len(t, seen, 2)
	assert.Equal(t, int64(2), a.GetMetrics().TokensDetected)
	assert.Equal(t, int64(7), a.GetMetrics().PollCycles)
}

func TestActorReportsDifferentTokenImmediately(t *testing.T) {
	t.Parallel()

	acq := &scriptedAcquirer{results: []result{card(0x01), card(0x02)}}
	count := 0
	a, _ := newTestActor(acq, Callbacks{
		OnToken: func(context.Context, doorterm.Acquisition) error {
			count++
			return nil
		},
	})

	a.Poll(context.Background())
	a.Poll(context.Background())
	assert.Equal(t, 2, count)
}

func TestActorCountsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("transport unplugged")
	acq := &scriptedAcquirer{results: []result{{err: boom}, card(0x01)}}
	var reported []error
	a, _ := newTestActor(acq, Callbacks{
		OnToken: func(context.Context, doorterm.Acquisition) error {
			return errors.New("server down")
		},
		OnError: func(err error) { reported = append(reported, err) },
	})

	a.Poll(context.Background())
	a.Poll(context.Background())

	m := a.GetMetrics()
	assert.Equal(t, int64(1), m.PollErrors)
	assert.Equal(t, int64(1), m.CallbackErrors)
	assert.Equal(t, []error{boom}, reported)
}

func TestActorAdaptiveInterval(t *testing.T) {
	t.Parallel()

	acq := &scriptedAcquirer{}
	a, clock := newTestActor(acq, Callbacks{})
	cfg := DefaultConfig()

	a.Poll(context.Background())
	assert.Equal(t, cfg.PollInterval, a.CurrentInterval())

	clock.advance(cfg.IdleAfter + time.Second)
	a.Poll(context.Background())
	assert.Equal(t, cfg.IdleInterval, a.CurrentInterval())

	acq.results = []result{card(0x05)}
	a.Poll(context.Background())
	assert.Equal(t, cfg.PollInterval, a.CurrentInterval())
}

func TestActorRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	acq := &scriptedAcquirer{}
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	a := NewActor(acq, cfg, Callbacks{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := a.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	acq.mu.Lock()
	defer acq.mu.Unlock()
	assert.Positive(t, acq.calls)
}

func TestActorRunRejectsBadConfig(t *testing.T) {
	t.Parallel()

	a := NewActor(&scriptedAcquirer{}, &Config{}, Callbacks{})
	require.ErrorIs(t, a.Run(context.Background()), ErrInvalidConfig)
}
