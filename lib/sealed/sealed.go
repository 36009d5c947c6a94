// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/evannetwork/smartagent/lib/secret"
)

// armorHeader starts every ASCII-armored age file.
const armorHeader = "-----BEGIN AGE ENCRYPTED FILE-----"

// Keypair is an age X25519 identity and its recipient string.
type Keypair struct {
	// Identity is the AGE-SECRET-KEY-1... string.
	Identity *secret.Buffer
	// Recipient is the age1... public key.
	Recipient string
}

// Close releases the identity.
func (k *Keypair) Close() error {
	if k.Identity != nil {
		return k.Identity.Close()
	}
	return nil
}

// GenerateKeypair creates a new X25519 identity.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating identity: %w", err)
	}
	buffer, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting identity: %w", err)
	}
	return &Keypair{Identity: buffer, Recipient: identity.Recipient().String()}, nil
}

// ReadIdentityFile reads an age-keygen style identity file: the first
// non-empty line that is not a comment.
func ReadIdentityFile(path string) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading identity file: %w", err)
	}
	defer secret.Zero(data)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		key := make([]byte, len(line))
		copy(key, line)
		return secret.NewFromBytes(key)
	}
	return nil, fmt.Errorf("sealed: no identity found in %s", path)
}

// Encrypt seals plaintext to the given age recipients and returns an
// ASCII-armored file body.
func Encrypt(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, errors.New("sealed: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("sealed: parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var output bytes.Buffer
	armored := armor.NewWriter(&output)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing armor: %w", err)
	}
	return output.Bytes(), nil
}

// Decrypt opens an armored or binary age ciphertext with identity. The
// identity buffer is borrowed, not closed.
func Decrypt(ciphertext []byte, identity *secret.Buffer) (*secret.Buffer, error) {
	parsed, err := age.ParseX25519Identity(string(identity.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing identity: %w", err)
	}

	var source io.Reader = bytes.NewReader(ciphertext)
	if bytes.HasPrefix(bytes.TrimSpace(ciphertext), []byte(armorHeader)) {
		source = armor.NewReader(bytes.NewReader(bytes.TrimSpace(ciphertext)))
	}
	reader, err := age.Decrypt(source, parsed)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: reading plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, errors.New("sealed: ciphertext decrypts to an empty file")
	}
	return secret.NewFromBytes(plaintext)
}

// DecryptFile reads path and decrypts it with the identity stored in
// identityPath.
func DecryptFile(path, identityPath string) (*secret.Buffer, error) {
	identity, err := ReadIdentityFile(identityPath)
	if err != nil {
		return nil, err
	}
	defer identity.Close()

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sealed: reading %s: %w", path, err)
	}
	return Decrypt(ciphertext, identity)
}
