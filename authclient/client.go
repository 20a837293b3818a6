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

// Package authclient talks to the door authorization server: it posts
// create, login and remove requests and classifies the short text answers.
package authclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds one POST
	DefaultTimeout = 10 * time.Second

	drainLimit = 4 << 10
)

var (
	// ErrMissingToken is returned for login or remove without a token
	ErrMissingToken = errors.New("token required")
	// ErrInvalidToken is returned for a token that is not valid UTF-8. JSON
	// would replace the bad bytes and distinct tokens would look the same.
	ErrInvalidToken = errors.New("token is not valid UTF-8")
	// ErrUnknownAction is returned for an action the server does not know
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidConfig is returned by New for unusable settings
	ErrInvalidConfig = errors.New("invalid authorization client config")
)

// Action is a server operation
type Action string

// Supported actions
const (
	ActionCreate Action = "create"
	ActionLogin  Action = "login"
	ActionRemove Action = "remove"
)

// PayloadFormat selects the login body shape
type PayloadFormat string

const (
	// PayloadCurrent sends login as {"loginDoor":{"token":..,"device":..}}
	PayloadCurrent PayloadFormat = "current"
	// PayloadLegacy sends login as {"login":"<token>"}
	PayloadLegacy PayloadFormat = "legacy"
)

// Request is one action for the server. Token and Device are ignored for
// create.
type Request struct {
	Action Action
	Device string
	Token  []byte
}

// Config holds the server location and transport settings
type Config struct {
	// BaseURL receives the action requests
	BaseURL string
	// StatusPath is resolved against BaseURL for PostStatus
	StatusPath string
	// RootCAFile pins the server certificate chain to one PEM root
	RootCAFile    string
	PayloadFormat PayloadFormat
	Timeout       time.Duration
	// RequestsPerSecond and Burst throttle outgoing requests. Zero disables
	// throttling.
	RequestsPerSecond float64
	Burst             int
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from Config
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the request logger
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConnectivityCheck makes every request fail fast as unreachable while
// online reports false.
func WithConnectivityCheck(online func() bool) Option {
	return func(c *Client) {
		c.online = online
	}
}

// WithLimiter replaces the limiter built from Config
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// Client posts requests to the authorization server. It is safe for
// concurrent use.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	logger    *log.Logger
	online    func() bool
	baseURL   string
	statusURL string
	format    PayloadFormat
}

// New creates a Client for cfg
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: empty base URL", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch cfg.PayloadFormat {
	case "":
		cfg.PayloadFormat = PayloadCurrent
	case PayloadCurrent, PayloadLegacy:
	default:
		return nil, fmt.Errorf("%w: payload format %q", ErrInvalidConfig, cfg.PayloadFormat)
	}

	c := &Client{
		logger:    log.New(io.Discard, "", 0),
		baseURL:   cfg.BaseURL,
		statusURL: joinURL(cfg.BaseURL, cfg.StatusPath),
		format:    cfg.PayloadFormat,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.RootCAFile != "" {
			tlsCfg, err := pinnedTLSConfig(cfg.RootCAFile)
			if err != nil {
				return nil, err
			}
			transport.TLSClientConfig = tlsCfg
		}
		c.http = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}
	return c, nil
}

// Submit sends req and classifies the answer. Transport failures come back
// as a StatusUnreachable response, not as an error; errors are only
// returned for malformed requests.
func (c *Client) Submit(ctx context.Context, req Request) (Response, error) {
	body, err := c.payload(req)
	if err != nil {
		return Response{}, err
	}
	return c.post(ctx, req.Action, c.baseURL, body), nil
}

// PostStatus reports the outcome of the last enrollment to the status path
func (c *Client) PostStatus(ctx context.Context, success bool) Response {
	msg := "error"
	if success {
		msg = "success"
	}
	body, _ := json.Marshal(map[string]string{"message": msg})
	resp := c.post(ctx, "", c.statusURL, body)
	if resp.Status == StatusRejected && resp.HTTPStatus >= 200 && resp.HTTPStatus <= 299 {
		resp.Status = StatusAcknowledged
	}
	return resp
}

func (c *Client) payload(req Request) ([]byte, error) {
	switch req.Action {
	case ActionCreate:
		return json.Marshal(map[string]bool{"create": true})
	case ActionLogin, ActionRemove:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	if len(req.Token) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrMissingToken, req.Action)
	}

	if !utf8.Valid(req.Token) {
		return nil, fmt.Errorf("%w for %s", ErrInvalidToken, req.Action)
	}

	token := string(req.Token)
	if req.Action == ActionLogin && c.format == PayloadCurrent {
		return json.Marshal(map[string]loginDoor{
			"loginDoor": {Token: token, Device: req.Device},
		})
	}
	return json.Marshal(map[string]string{string(req.Action): token})
}

type loginDoor struct {
	Token  string `json:"token"`
	Device string `json:"device"`
}

func (c *Client) post(ctx context.Context, action Action, url string, body []byte) Response {
	requestID := uuid.NewString()
	if c.online != nil && !c.online() {
		c.logger.Printf("%s: offline, not sending %s", requestID, action)
		return unreachable(requestID)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Printf("%s: rate limiter: %v", requestID, err)
			return unreachable(requestID)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.logger.Printf("%s: building request: %v", requestID, err)
		return unreachable(requestID)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	c.logger.Printf("%s: POST %s %s", requestID, url, body)
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Printf("%s: %v", requestID, err)
		return unreachable(requestID)
	}
	defer func() { _ = httpResp.Body.Close() }()

	text, err := io.ReadAll(io.LimitReader(httpResp.Body, MaxResponseLen))
	if err != nil {
		c.logger.Printf("%s: reading body: %v", requestID, err)
	}
	// drain a little so short overlong bodies keep the connection reusable
	_, _ = io.CopyN(io.Discard, httpResp.Body, drainLimit)

	resp := classify(action, httpResp.StatusCode, string(text))
	resp.RequestID = requestID
	c.logger.Printf("%s: %d %q -> %s", requestID, httpResp.StatusCode, resp.Message, resp.Status)
	return resp
}

func pinnedTLSConfig(caFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading root CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrInvalidConfig, caFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
