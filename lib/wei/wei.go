// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wei

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"gopkg.in/yaml.v3"
)

// Parse converts text to a non-negative integer amount.
func Parse(text string) (*big.Int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("wei: empty amount")
	}
	if strings.HasPrefix(text, "-") {
		return nil, fmt.Errorf("wei: negative amount %q", text)
	}
	if value, ok := math.ParseBig256(text); ok {
		return value, nil
	}
	if !strings.ContainsAny(text, "eE") || strings.HasPrefix(text, "0x") {
		return nil, fmt.Errorf("wei: invalid amount %q", text)
	}

	float, _, err := big.ParseFloat(text, 10, 512, big.ToZero)
	if err != nil {
		return nil, fmt.Errorf("wei: invalid amount %q: %w", text, err)
	}
	value, accuracy := float.Int(nil)
	if accuracy != big.Exact {
		return nil, fmt.Errorf("wei: amount %q is not an integer", text)
	}
	return value, nil
}

// MustParse is Parse for constants. It panics on invalid input.
func MustParse(text string) *big.Int {
	value, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return value
}

// Amount is an integer amount that decodes from YAML and JSON strings
// or numbers in any notation Parse accepts. It encodes to JSON as a
// decimal string.
type Amount struct {
	value *big.Int
}

// NewAmount wraps value. A nil value is zero.
func NewAmount(value *big.Int) Amount {
	if value == nil {
		return Amount{}
	}
	return Amount{value: new(big.Int).Set(value)}
}

// Int returns a copy of the amount.
func (a Amount) Int() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.value)
}

// IsSet reports whether the amount was decoded or constructed.
func (a Amount) IsSet() bool { return a.value != nil }

// String returns the decimal form.
func (a Amount) String() string { return a.Int().String() }

// UnmarshalYAML accepts scalar strings and numbers.
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("wei: line %d: amount must be a scalar", node.Line)
	}
	value, err := Parse(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	a.value = value
	return nil
}

// UnmarshalJSON accepts JSON strings and numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		a.value = nil
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}
	value, err := Parse(text)
	if err != nil {
		return err
	}
	a.value = value
	return nil
}

// MarshalJSON encodes the decimal string form.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}
