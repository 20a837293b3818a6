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

package authclient

import "strings"

// Response literals the authorization server answers with
const (
	CreatedPrefix   = "Create processed. Token: "
	LoggedInPrefix  = "Login processed"
	RemovedPrefix   = "Remove processed"
	TokenLength     = 16
	MaxResponseLen  = 63
	ResponseBufSize = MaxResponseLen + 1
)

// UnreachableMessage is the message of a response that never reached the
// server.
const UnreachableMessage = "Server unreachable"

// Status classifies a server exchange
type Status int

const (
	// StatusRejected is any answer that is not the expected literal
	StatusRejected Status = iota
	// StatusCreated means a new token was issued
	StatusCreated
	// StatusLoggedIn means the door accepted the token
	StatusLoggedIn
	// StatusRemoved means the token was revoked
	StatusRemoved
	// StatusAcknowledged is a successful status callback
	StatusAcknowledged
	// StatusUnreachable means no HTTP exchange took place
	StatusUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusLoggedIn:
		return "logged in"
	case StatusRemoved:
		return "removed"
	case StatusAcknowledged:
		return "acknowledged"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "rejected"
	}
}

// Response is the outcome of one request
type Response struct {
	Message    string
	RequestID  string
	Token      []byte
	HTTPStatus int
	Status     Status
}

// OK reports whether the server confirmed the action
func (r Response) OK() bool {
	switch r.Status {
	case StatusCreated, StatusLoggedIn, StatusRemoved, StatusAcknowledged:
		return true
	default:
		return false
	}
}

// CopyTerminated copies Message into dst followed by a NUL byte and returns
// the number of message bytes copied. It never writes past dst.
func (r Response) CopyTerminated(dst []byte) int {
	if len(dst) == 0 {
		return 0
	}
	n := copy(dst[:len(dst)-1], r.Message)
	dst[n] = 0
	return n
}

func unreachable(requestID string) Response {
	return Response{Status: StatusUnreachable, Message: UnreachableMessage, RequestID: requestID}
}

// classify maps a body to a status for action. Only a 2xx answer carrying
// the action's literal counts as success.
func classify(action Action, httpStatus int, body string) Response {
	resp := Response{Status: StatusRejected, Message: body, HTTPStatus: httpStatus}
	if httpStatus < 200 || httpStatus > 299 {
		return resp
	}

	switch action {
	case ActionCreate:
		rest, ok := strings.CutPrefix(body, CreatedPrefix)
		if ok && len(rest) >= TokenLength {
			resp.Status = StatusCreated
			resp.Token = []byte(rest[:TokenLength])
		}
	case ActionLogin:
		if strings.HasPrefix(body, LoggedInPrefix) {
			resp.Status = StatusLoggedIn
		}
	case ActionRemove:
		if strings.HasPrefix(body, RemovedPrefix) {
			resp.Status = StatusRemoved
		}
	}
	return resp
}
