// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// MaxResponseSize bounds every response body read from a remote
// service. Confirmation-service and JSON-RPC responses are small; a
// larger body indicates a misbehaving peer.
const MaxResponseSize int64 = 8 << 20

// maxErrorBodyLength bounds the error text embedded in error values and
// log lines.
const maxErrorBodyLength = 512

// ReadResponse reads body up to MaxResponseSize.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds %d bytes", MaxResponseSize)
	}
	return data, nil
}

// DecodeResponse reads body and unmarshals it as JSON into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// ErrorBody returns a trimmed, truncated rendering of an error
// response body.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBodyLength+1))
	text := strings.TrimSpace(string(data))
	if len(text) > maxErrorBodyLength {
		text = text[:maxErrorBodyLength] + "..."
	}
	return text
}
