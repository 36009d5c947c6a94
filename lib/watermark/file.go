// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watermark

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/evannetwork/smartagent/lib/codec"
)

type fileState struct {
	Version    int               `cbor:"version"`
	Watermarks map[string]uint64 `cbor:"watermarks"`
}

// FileStore keeps all watermarks in one CBOR file, rewritten
// atomically on every Save.
type FileStore struct {
	path string

	mutex sync.Mutex
	state fileState
}

// OpenFile loads path, which need not exist yet.
func OpenFile(path string) (*FileStore, error) {
	store := &FileStore{path: path, state: fileState{Version: 1, Watermarks: make(map[string]uint64)}}
	var loaded fileState
	err := codec.ReadFile(path, &loaded)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return store, nil
	case err != nil:
		return nil, fmt.Errorf("watermark: %w", err)
	}
	if loaded.Watermarks != nil {
		store.state.Watermarks = loaded.Watermarks
	}
	return store, nil
}

func (s *FileStore) Load(ctx context.Context, agent string) (uint64, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	block, found := s.state.Watermarks[agent]
	return block, found, nil
}

func (s *FileStore) Save(ctx context.Context, agent string, block uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if current, found := s.state.Watermarks[agent]; found && current == block {
		return nil
	}
	s.state.Watermarks[agent] = block
	if err := codec.WriteFile(s.path, s.state); err != nil {
		return fmt.Errorf("watermark: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Memory is an in-process Store.
type Memory struct {
	mutex  sync.Mutex
	blocks map[string]uint64
}

func NewMemory() *Memory { return &Memory{blocks: make(map[string]uint64)} }

func (m *Memory) Load(ctx context.Context, agent string) (uint64, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	block, found := m.blocks[agent]
	return block, found, nil
}

func (m *Memory) Save(ctx context.Context, agent string, block uint64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.blocks[agent] = block
	return nil
}

func (m *Memory) Close() error { return nil }
