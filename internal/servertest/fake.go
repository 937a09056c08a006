// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package servertest provides an in-process fake audio server
// satisfying internal/server.Conn, playing the role of the mocked
// server spec.md §8 asks test scenarios to seed. It is modeled on the
// teacher's base/watchers/dbus/testbus.go in-process fake D-Bus peer:
// a hand-held, directly-addressable double instead of a mocking
// framework, so tests can assert exact call order and exactly-once
// completion.
package servertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mobian-project/callaudiod/internal/server"
)

// Call records one server mutation request for assertions.
type Call struct {
	Method string // "SetCardProfile", "SetSinkPort", "SetSourcePort", "SetSourceMute", "UnloadModule"
	Index  uint32
	Value  interface{}
}

// Conn is the fake. Populate Cards/Sinks/Sources/Modules before
// Connect; mutation methods update them in place and append to Calls.
// Set FailNext to make the next N mutation calls return an error,
// simulating ServerRequestFailed.
type Conn struct {
	mu sync.Mutex

	Cards   []server.CardInfo
	Sinks   []server.EndpointInfo
	Sources []server.EndpointInfo
	Modules []server.ModuleInfo

	Calls []Call

	// FailNext, if > 0, makes the next mutation call fail and
	// decrements.
	FailNext int

	onEvent func(server.Event)
	done    chan struct{}
}

// New returns a ready-to-populate fake connection.
func New() *Conn {
	return &Conn{done: make(chan struct{})}
}

func (c *Conn) Connect(ctx context.Context, appName, appID string) error { return nil }

func (c *Conn) WaitReady(ctx context.Context) (server.State, error) {
	return server.StateReady, nil
}

func (c *Conn) Close() error { return nil }

func (c *Conn) Done() <-chan struct{} { return c.done }

// CloseUnexpectedly simulates a connection drop after Ready, so
// internal/server.Session reconnects.
func (c *Conn) CloseUnexpectedly() { close(c.done) }

func (c *Conn) Subscribe(onEvent func(server.Event)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = onEvent
	return nil
}

// Emit delivers a subscription event to whoever called Subscribe, as
// if the server had sent it.
func (c *Conn) Emit(ev server.Event) {
	c.mu.Lock()
	cb := c.onEvent
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func (c *Conn) ListCards(ctx context.Context) ([]server.CardInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]server.CardInfo(nil), c.Cards...), nil
}

func (c *Conn) ListModules(ctx context.Context) ([]server.ModuleInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]server.ModuleInfo(nil), c.Modules...), nil
}

func (c *Conn) ListSinks(ctx context.Context) ([]server.EndpointInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]server.EndpointInfo(nil), c.Sinks...), nil
}

func (c *Conn) ListSources(ctx context.Context) ([]server.EndpointInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]server.EndpointInfo(nil), c.Sources...), nil
}

func (c *Conn) GetCardInfo(ctx context.Context, index uint32) (server.CardInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, card := range c.Cards {
		if card.Index == index {
			return card, nil
		}
	}
	return server.CardInfo{}, fmt.Errorf("no such card %d", index)
}

func (c *Conn) GetSinkInfo(ctx context.Context, index uint32) (server.EndpointInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.Sinks {
		if s.Index == index {
			return s, nil
		}
	}
	return server.EndpointInfo{}, fmt.Errorf("no such sink %d", index)
}

func (c *Conn) GetSourceInfo(ctx context.Context, index uint32) (server.EndpointInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.Sources {
		if s.Index == index {
			return s, nil
		}
	}
	return server.EndpointInfo{}, fmt.Errorf("no such source %d", index)
}

func (c *Conn) failIfDue() error {
	if c.FailNext > 0 {
		c.FailNext--
		return fmt.Errorf("server request failed")
	}
	return nil
}

func (c *Conn) SetCardProfile(ctx context.Context, index uint32, profile string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, Call{"SetCardProfile", index, profile})
	if err := c.failIfDue(); err != nil {
		return err
	}
	for i := range c.Cards {
		if c.Cards[i].Index == index {
			c.Cards[i].ActiveProfile = profile
		}
	}
	return nil
}

func (c *Conn) SetSinkPort(ctx context.Context, index uint32, port string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, Call{"SetSinkPort", index, port})
	if err := c.failIfDue(); err != nil {
		return err
	}
	for i := range c.Sinks {
		if c.Sinks[i].Index == index {
			c.Sinks[i].ActivePort = port
		}
	}
	return nil
}

func (c *Conn) SetSourcePort(ctx context.Context, index uint32, port string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, Call{"SetSourcePort", index, port})
	if err := c.failIfDue(); err != nil {
		return err
	}
	for i := range c.Sources {
		if c.Sources[i].Index == index {
			c.Sources[i].ActivePort = port
		}
	}
	return nil
}

func (c *Conn) SetSourceMute(ctx context.Context, index uint32, mute bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, Call{"SetSourceMute", index, mute})
	if err := c.failIfDue(); err != nil {
		return err
	}
	for i := range c.Sources {
		if c.Sources[i].Index == index {
			c.Sources[i].Mute = mute
		}
	}
	return nil
}

func (c *Conn) UnloadModule(ctx context.Context, index uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, Call{"UnloadModule", index, nil})
	if err := c.failIfDue(); err != nil {
		return err
	}
	out := c.Modules[:0]
	for _, m := range c.Modules {
		if m.Index != index {
			out = append(out, m)
		}
	}
	c.Modules = out
	return nil
}

var _ server.Conn = (*Conn)(nil)
