// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evanauth

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/evannetwork/smartagent/lib/clock"
	"github.com/evannetwork/smartagent/lib/metrics"
)

// MaxAge is how long a signed header stays valid.
const MaxAge = 5 * time.Minute

// Verifier checks Authorization headers. The zero value uses the real
// clock and Recover.
type Verifier struct {
	Clock   clock.Clock
	Recover RecoverFunc
	Metrics *metrics.Metrics
}

// Authenticate verifies the Authorization header in header and returns
// its components. Every failure is an authentication *Error wrapping
// one of ErrMissingHeader, ErrMalformedHeader, ErrExpired or
// ErrNotVerified.
func (v *Verifier) Authenticate(header http.Header) (*Components, error) {
	components, err := v.authenticate(header.Get(HeaderName))
	if err != nil {
		v.Metrics.AuthFailure(KindAuthentication.String())
		return nil, Authentication(err)
	}
	return components, nil
}

func (v *Verifier) authenticate(value string) (*Components, error) {
	components, err := ParseHeader(value)
	if err != nil {
		return nil, err
	}

	signedAt, err := strconv.ParseInt(components.Message, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: EvanMessage %q is not a decimal timestamp", ErrExpired, components.Message)
	}
	now := v.clock().Now()
	if time.UnixMilli(signedAt).Add(MaxAge).Before(now) {
		return nil, ErrExpired
	}

	recoverSigner := v.Recover
	if recoverSigner == nil {
		recoverSigner = Recover
	}
	signer, err := recoverSigner(components.Message, components.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotVerified, err)
	}
	if signer != components.Account {
		return nil, ErrNotVerified
	}
	return &components, nil
}

func (v *Verifier) clock() clock.Clock {
	if v.Clock == nil {
		return clock.Real()
	}
	return v.Clock
}
