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

package server

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Factory builds a fresh, unconnected Conn. The Session calls it once
// per connection attempt, the same way C1 allocates a new context after
// a Failed teardown instead of reusing the old one.
type Factory func() Conn

// ReadyFunc is invoked once per successful connection. Session does not
// subscribe on its own: ReadyFunc is where the caller installs the
// subscription callback and triggers Discovery (spec.md §4.1: "install
// the subscription callback ... and trigger Discovery"). It runs on
// Session.Run's goroutine; it
// should not block for long, since no reconnect can be noticed while it
// runs.
type ReadyFunc func(ctx context.Context, conn Conn)

// LostFunc is invoked once per connection that was previously Ready and
// is now gone, whether because the server dropped it (entered the
// Failed state, spec.md §4.1) or because Run's context was canceled. It
// runs on Session.Run's goroutine, before the reconnect delay, so
// callers can synchronously invalidate anything they bound to the dead
// connection in ReadyFunc before a new one is attempted.
type LostFunc func()

// Session owns one logical connection to the audio server and
// reconnects on failure (spec.md §4.1, component C1). It is the
// process-wide resource spec.md §9 asks to model explicitly rather than
// behind a lazy singleton accessor: construct one with New, call Run in
// a goroutine, and cancel Run's context when the daemon shuts down (Run
// then closes the live connection before it returns).
type Session struct {
	newConn        Factory
	appName, appID string
	onReady        ReadyFunc
	onLost         LostFunc
	reconnectDelay time.Duration
	log            *logrus.Entry

	mu   sync.Mutex
	conn Conn // current live connection, nil between attempts
}

// New builds a Session. reconnectDelay of zero defaults to one second.
// onLost may be nil if the caller has nothing to invalidate on
// disconnect.
func New(newConn Factory, appName, appID string, onReady ReadyFunc, onLost LostFunc, reconnectDelay time.Duration, log *logrus.Entry) *Session {
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if onLost == nil {
		onLost = func() {}
	}
	return &Session{
		newConn:        newConn,
		appName:        appName,
		appID:          appID,
		onReady:        onReady,
		onLost:         onLost,
		reconnectDelay: reconnectDelay,
		log:            log,
	}
}

// Run connects and reconnects until ctx is done. It never returns a
// non-nil error for a connection failure, since reconnecting is the
// defined recovery (spec.md §7): it only returns when ctx is canceled.
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn := s.newConn()
		if err := conn.Connect(ctx, s.appName, s.appID); err != nil {
			s.log.WithError(err).Warn("connect failed, retrying")
			if !s.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		state, err := conn.WaitReady(ctx)
		if err != nil || state != StateReady {
			s.log.WithError(err).WithField("state", state).Warn("connection did not become ready, retrying")
			conn.Close()
			if !s.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		s.setConn(conn)
		s.log.Info("audio server connection ready")
		s.onReady(ctx, conn)

		select {
		case <-conn.Done():
			s.log.Warn("audio server connection lost, reconnecting")
		case <-ctx.Done():
			conn.Close()
			s.setConn(nil)
			s.onLost()
			return ctx.Err()
		}
		s.setConn(nil)
		s.onLost()
		conn.Close()
		if !s.sleep(ctx) {
			return ctx.Err()
		}
	}
}

func (s *Session) sleep(ctx context.Context) bool {
	t := time.NewTimer(s.reconnectDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) setConn(c Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = c
}

// Conn returns the current live connection, or nil if disconnected.
// Callers (internal/daemon's Close) must check for nil.
func (s *Session) Conn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
