// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"sync"

	"github.com/evannetwork/smartagent/transport"
)

// Registry is the set of active agents.
type Registry struct {
	mutex  sync.RWMutex
	agents map[string]*Context
	order  []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Context)}
}

// Register adds agent. Names are unique.
func (r *Registry) Register(agent *Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.agents[agent.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateAgent, agent.Name())
	}
	r.agents[agent.Name()] = agent
	r.order = append(r.order, agent.Name())
	return nil
}

// Get returns the named agent.
func (r *Registry) Get(name string) (*Context, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	agent, ok := r.agents[name]
	return agent, ok
}

// List returns the agents in registration order.
func (r *Registry) List() []*Context {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	agents := make([]*Context, 0, len(r.order))
	for _, name := range r.order {
		agents = append(agents, r.agents[name])
	}
	return agents
}

// SubscriptionOwners implements transport.OwnerSource.
func (r *Registry) SubscriptionOwners() []transport.SubscriptionOwner {
	agents := r.List()
	owners := make([]transport.SubscriptionOwner, len(agents))
	for i, agent := range agents {
		owners[i] = agent
	}
	return owners
}

// Close closes every agent.
func (r *Registry) Close() error {
	for _, agent := range r.List() {
		agent.Close()
	}
	return nil
}
