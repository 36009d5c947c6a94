// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 hash.
type Digest [32]byte

// String returns the lowercase hex form.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// HashReader streams reader through BLAKE3.
func HashReader(reader io.Reader) (Digest, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return Digest{}, err
	}
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// HashFile hashes the file at path with constant memory.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	digest, err := HashReader(file)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return digest, nil
}

// Self hashes the running executable.
func Self() (Digest, string, error) {
	executable, err := os.Executable()
	if err != nil {
		return Digest{}, "", fmt.Errorf("resolving own executable path: %w", err)
	}
	digest, err := HashFile(executable)
	return digest, executable, err
}
