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

// Package server declares the boundary between the routing core and
// the external audio server (spec.md §6, component C1). Production
// code talks to a real PulseAudio instance through internal/pulsedbus;
// tests talk to a hand-written fake that satisfies the same Conn
// interface, the same way the teacher's base/watchers/dbus/testbus.go
// stands in for a real D-Bus peer in its own tests.
package server

import "context"

// PortInfo is the wire shape of a port as reported by the server.
type PortInfo struct {
	Name         string
	Priority     uint32
	Availability int // 0 unknown, 1 no, 2 yes — mirrors topology.Availability
}

// ProfileInfo is the wire shape of a card profile.
type ProfileInfo struct {
	Name string
}

// CardInfo is the wire shape of a card.
type CardInfo struct {
	Index        uint32
	Name         string
	BusPath      string
	FormFactor   string
	DeviceClass  string
	ActiveProfile string
	Profiles     []ProfileInfo
}

// ModuleInfo is the wire shape of a loaded module.
type ModuleInfo struct {
	Index uint32
	Name  string
}

// EndpointInfo is the wire shape shared by sinks and sources.
type EndpointInfo struct {
	Index       uint32
	CardIndex   uint32
	Name        string
	DeviceClass string
	DeviceAPI   string
	ActivePort  string
	Ports       []PortInfo
	Mute        bool
}

// Facility identifies which kind of object a subscription Event is
// about.
type Facility int

const (
	FacilitySink Facility = iota
	FacilitySource
	FacilityCard
)

// EventKind identifies what happened to the object named by an Event.
type EventKind int

const (
	EventNew EventKind = iota
	EventChange
	EventRemove
)

// Event is a subscription notification (spec.md §6: "subscription
// events carrying (facility, kind, index)").
type Event struct {
	Facility Facility
	Kind     EventKind
	Index    uint32
}

// State mirrors the context state-machine states of spec.md §4.1.
type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateAuthorizing
	StateSettingName
	StateReady
	StateFailed
	StateTerminated
)

// Conn is the set of operations the routing core needs from an audio
// server connection. Every method either returns once the server has
// replied or returns an error — the blocking call itself is the
// "suspension point" spec.md §5 describes, modeled with a goroutine per
// Operation instead of nested completion callbacks (see spec.md §9's
// design note on this).
type Conn interface {
	// Connect opens the connection, identifying the client as appName
	// (application.name) / appID (application.process.id or similar).
	// It does not block until Ready; use WaitReady for that.
	Connect(ctx context.Context, appName, appID string) error
	// WaitReady blocks until the connection reaches StateReady,
	// StateFailed or ctx is done.
	WaitReady(ctx context.Context) (State, error)
	// Close disconnects and releases the connection.
	Close() error
	// Done returns a channel that is closed when the connection is lost
	// unexpectedly (the context entered the Failed state after having
	// been Ready). It is never closed by a caller-initiated Close.
	Done() <-chan struct{}

	// Subscribe installs onEvent as the subscription callback for the
	// Sink|Source|Card facilities. It replaces any previous callback.
	Subscribe(onEvent func(Event)) error

	ListCards(ctx context.Context) ([]CardInfo, error)
	ListModules(ctx context.Context) ([]ModuleInfo, error)
	ListSinks(ctx context.Context) ([]EndpointInfo, error)
	ListSources(ctx context.Context) ([]EndpointInfo, error)

	GetCardInfo(ctx context.Context, index uint32) (CardInfo, error)
	GetSinkInfo(ctx context.Context, index uint32) (EndpointInfo, error)
	GetSourceInfo(ctx context.Context, index uint32) (EndpointInfo, error)

	SetCardProfile(ctx context.Context, index uint32, profile string) error
	SetSinkPort(ctx context.Context, index uint32, port string) error
	SetSourcePort(ctx context.Context, index uint32, port string) error
	SetSourceMute(ctx context.Context, index uint32, mute bool) error
	UnloadModule(ctx context.Context, index uint32) error
}
