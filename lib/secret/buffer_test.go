// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"testing"
)

func TestNewIsZeroFilled(t *testing.T) {
	buffer, err := New(32)
	if err != nil {
		t.Fatalf("New(32): %v", err)
	}
	defer buffer.Close()

	if buffer.Len() != 32 {
		t.Fatalf("Len() = %d, want 32", buffer.Len())
	}
	for index, value := range buffer.Bytes() {
		if value != 0 {
			t.Fatalf("byte %d = %d, want 0", index, value)
		}
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := New(size); err == nil {
			t.Errorf("New(%d) succeeded, want error", size)
		}
	}
}

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("private key material")
	want := append([]byte(nil), source...)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if !bytes.Equal(buffer.Bytes(), want) {
		t.Errorf("Bytes() = %q, want %q", buffer.Bytes(), want)
	}
	if !bytes.Equal(source, make([]byte, len(source))) {
		t.Errorf("source not zeroed: %q", source)
	}
}

func TestNewFromHex(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"prefixed", "0x0a0b0c", []byte{0x0a, 0x0b, 0x0c}, false},
		{"bare", "ff00", []byte{0xff, 0x00}, false},
		{"whitespace", "  0x01\n", []byte{0x01}, false},
		{"empty", "0x", nil, true},
		{"odd_length", "abc", nil, true},
		{"not_hex", "zz", nil, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buffer, err := NewFromHex(test.input)
			if test.wantErr {
				if err == nil {
					buffer.Close()
					t.Fatal("NewFromHex succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFromHex: %v", err)
			}
			defer buffer.Close()
			if !bytes.Equal(buffer.Bytes(), test.want) {
				t.Errorf("Bytes() = %x, want %x", buffer.Bytes(), test.want)
			}
		})
	}
}

func TestCloseIsIdempotentAndPanicsOnRead(t *testing.T) {
	buffer, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if buffer.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", buffer.Len())
	}

	defer func() {
		if recover() == nil {
			t.Error("Bytes() after Close did not panic")
		}
	}()
	buffer.Bytes()
}
