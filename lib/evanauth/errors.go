// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evanauth

import (
	"errors"
	"fmt"
)

var (
	ErrMissingHeader   = errors.New("no authorization headers provided")
	ErrMalformedHeader = errors.New("malformed authorization header")
	ErrExpired         = errors.New("signed message has been expired")
	ErrNotVerified     = errors.New("no verified account")
	ErrNoPermission    = errors.New("account lacks permission for identity")
)

// Kind separates "who are you" failures from "what may you do"
// failures.
type Kind int

const (
	KindAuthentication Kind = iota + 1
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a rejected request.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Kind.String() + " failed: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Authentication wraps err as an authentication failure.
func Authentication(err error) error { return &Error{Kind: KindAuthentication, Err: err} }

// Authorization wraps err as an authorization failure.
func Authorization(err error) error { return &Error{Kind: KindAuthorization, Err: err} }

// IsAuthenticationError reports whether err is or wraps an
// authentication failure.
func IsAuthenticationError(err error) bool { return kindOf(err) == KindAuthentication }

// IsAuthorizationError reports whether err is or wraps an
// authorization failure.
func IsAuthorizationError(err error) bool { return kindOf(err) == KindAuthorization }

func kindOf(err error) Kind {
	var authError *Error
	if errors.As(err, &authError) {
		return authError.Kind
	}
	return 0
}
