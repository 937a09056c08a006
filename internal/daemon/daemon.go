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

// Package daemon is the process-wide resource that wires a
// server.Session to discovery, the reactor and the engine, and exposes
// the intent facade currently valid for the live connection. It is
// built explicitly with New/Close rather than accessed through a
// package-level singleton (spec.md §9's design note on C1).
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mobian-project/callaudiod/internal/caerr"
	"github.com/mobian-project/callaudiod/internal/discovery"
	"github.com/mobian-project/callaudiod/internal/engine"
	"github.com/mobian-project/callaudiod/internal/intent"
	"github.com/mobian-project/callaudiod/internal/reactor"
	"github.com/mobian-project/callaudiod/internal/server"
	"github.com/mobian-project/callaudiod/internal/topology"
)

// Daemon is the top-level object cmd/callaudiod builds and runs.
type Daemon struct {
	session *server.Session
	model   *topology.Model
	log     *logrus.Entry

	mu     sync.Mutex
	facade *intent.Facade
}

// Config carries the few values the daemon needs beyond a Conn
// factory: how it identifies itself to the audio server, and how long
// it waits between reconnect attempts.
type Config struct {
	AppName        string
	AppID          string
	ReconnectDelay time.Duration
}

// New builds a Daemon. newConn is called once per connection attempt;
// production code passes pulsedbus.New, tests pass a servertest.New
// wrapped in a closure.
func New(newConn server.Factory, cfg Config, log *logrus.Entry) *Daemon {
	model := topology.New()
	d := &Daemon{model: model, log: log}
	d.session = server.New(newConn, cfg.AppName, cfg.AppID, d.onReady, d.onLost, cfg.ReconnectDelay, log)
	return d
}

// Run blocks until ctx is canceled, connecting and reconnecting to the
// audio server and reacting to its events (spec.md §4.1).
func (d *Daemon) Run(ctx context.Context) error {
	return d.session.Run(ctx)
}

// Close disconnects the current connection, if any. Safe to call after
// Run has already returned.
func (d *Daemon) Close() error {
	if conn := d.session.Conn(); conn != nil {
		return conn.Close()
	}
	return nil
}

// onReady runs discovery, installs the reactor as the subscription
// callback, and publishes a fresh intent Facade bound to this
// connection (spec.md §4.1 step "install the subscription callback ...
// and trigger Discovery").
func (d *Daemon) onReady(ctx context.Context, conn server.Conn) {
	if err := discovery.Run(ctx, conn, d.model, d.log); err != nil {
		d.log.WithError(err).Error("discovery failed")
		return
	}

	r := reactor.New(conn, d.model, d.log)
	if err := conn.Subscribe(func(ev server.Event) { r.Handle(ctx, ev) }); err != nil {
		d.log.WithError(err).Error("failed to subscribe to server events")
		return
	}

	eng := engine.New(conn, d.model, d.log)
	f := intent.New(eng, d.model, d.log)

	d.mu.Lock()
	d.facade = f
	d.mu.Unlock()
}

// onLost invalidates everything onReady published once the connection
// it was bound to is gone (spec.md §5: tracked indices must "refer to
// currently existing server objects"; a dead connection's sink/source
// indices no longer do). Clearing the facade makes SelectMode,
// EnableSpeaker and MuteMic fail synchronously with ErrConnectionLost
// for the whole reconnect gap, not just before the first connection.
func (d *Daemon) onLost() {
	d.mu.Lock()
	d.facade = nil
	d.mu.Unlock()
	d.model.DropCard()
}

func (d *Daemon) current() (*intent.Facade, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.facade == nil {
		return nil, caerr.ErrConnectionLost
	}
	return d.facade, nil
}

// SelectMode, EnableSpeaker and MuteMic forward to the Facade currently
// bound to the live connection. They return ErrConnectionLost
// synchronously if no connection is ready yet.
func (d *Daemon) SelectMode(ctx context.Context, target topology.Mode, done func(bool)) error {
	f, err := d.current()
	if err != nil {
		return err
	}
	return f.SelectMode(ctx, target, done)
}

func (d *Daemon) EnableSpeaker(ctx context.Context, enable bool, done func(bool)) error {
	f, err := d.current()
	if err != nil {
		return err
	}
	return f.EnableSpeaker(ctx, enable, done)
}

func (d *Daemon) MuteMic(ctx context.Context, mute bool, done func(bool)) error {
	f, err := d.current()
	if err != nil {
		return err
	}
	return f.MuteMic(ctx, mute, done)
}

// Model exposes the tracked topology read-only, for diagnostics.
func (d *Daemon) Model() *topology.Model { return d.model }
