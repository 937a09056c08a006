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

// Package topology is the in-memory view of the tracked card, its
// sinks/sources, ports and profiles (spec.md §3, component C2). It is a
// pure data holder: no server requests originate here.
package topology

import "sync"

// BackendFlavor distinguishes the native ALSA back-end from the droid
// (Android HAL) back-end. It is derived per sink/source from the
// device.api property, never from a compile-time switch.
type BackendFlavor int

const (
	// Native is the default ALSA/UCM-driven back-end.
	Native BackendFlavor = iota
	// Droid is the Android HAL back-end reached through PulseAudio's
	// droid module.
	Droid
)

func (f BackendFlavor) String() string {
	if f == Droid {
		return "droid"
	}
	return "native"
}

// Availability is the tri-state PulseAudio reports for a port.
type Availability int

const (
	AvailabilityUnknown Availability = iota
	AvailabilityNo
	AvailabilityYes
)

// Mode mirrors the last successful mode selection.
type Mode int

const (
	Default Mode = iota
	Call
)

func (m Mode) String() string {
	if m == Call {
		return "call"
	}
	return "default"
}

// Port is a single routing endpoint on a sink or source.
type Port struct {
	Name         string
	Priority     uint32
	Availability Availability
}

// Card is the one tracked sound card.
type Card struct {
	Index           uint32
	Name            string
	ActiveProfile   string
	Profiles        []string
	HasVoiceProfile bool
}

// Endpoint is the shared shape of a Sink and a Source.
type Endpoint struct {
	Index      uint32
	CardIndex  uint32
	Name       string
	ActivePort string
	Ports      []Port
	Flavor     BackendFlavor

	// knownAvailability only ever holds entries whose last-seen value
	// was Yes or No, per spec.md §3's invariant.
	knownAvailability map[string]Availability
}

func newEndpoint(index, cardIndex uint32, name, activePort string, ports []Port, flavor BackendFlavor) Endpoint {
	e := Endpoint{
		Index:      index,
		CardIndex:  cardIndex,
		Name:       name,
		ActivePort: activePort,
		Ports:      ports,
		Flavor:     flavor,
	}
	e.knownAvailability = make(map[string]Availability, len(ports))
	for _, p := range ports {
		if p.Availability != AvailabilityUnknown {
			e.knownAvailability[p.Name] = p.Availability
		}
	}
	return e
}

// KnownAvailability returns the last-seen Yes/No availability for name,
// and whether an entry exists at all.
func (e *Endpoint) KnownAvailability(name string) (Availability, bool) {
	a, ok := e.knownAvailability[name]
	return a, ok
}

// Model holds the tracked card, sink and source. All mutation methods
// are safe for concurrent use: the Operation Engine and the Event
// Reactor both run as independent goroutines (see internal/engine and
// internal/reactor), unlike the single-threaded cooperative loop the
// original daemon used.
type Model struct {
	mu sync.Mutex

	card      *Card
	sink      *Endpoint
	source    *Endpoint
	mode      Mode
	speaker   string // cached speaker port name on the tracked sink
}

// New returns an empty Model with Mode defaulted to Default.
func New() *Model {
	return &Model{mode: Default}
}

// SetCard installs or replaces the tracked card.
func (m *Model) SetCard(c Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := c
	m.card = &cp
}

// Card returns a copy of the tracked card, or false if absent.
func (m *Model) Card() (Card, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.card == nil {
		return Card{}, false
	}
	return *m.card, true
}

// DropCard forgets the tracked card (and, transitively, any sink/source
// since they can no longer refer to a live card).
func (m *Model) DropCard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.card = nil
	m.sink = nil
	m.source = nil
}

// SetCardProfile updates only the active-profile field of the tracked
// card, used after a successful SetCardProfile server reply.
func (m *Model) SetCardProfile(active string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.card != nil {
		m.card.ActiveProfile = active
	}
}

// SetSink installs or replaces the tracked sink and replaces the cached
// speaker port (spec.md §3 SpeakerPort) with speaker, as computed by the
// caller.
func (m *Model) SetSink(index, cardIndex uint32, name, activePort string, ports []Port, flavor BackendFlavor, speaker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := newEndpoint(index, cardIndex, name, activePort, ports, flavor)
	m.sink = &e
	m.speaker = speaker
}

// Sink returns a copy of the tracked sink, or false if absent.
func (m *Model) Sink() (Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sink == nil {
		return Endpoint{}, false
	}
	return *m.sink, true
}

// DropSink forgets the tracked sink and its port-availability map.
func (m *Model) DropSink(index uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sink != nil && m.sink.Index == index {
		m.sink = nil
		m.speaker = ""
	}
}

// SetSinkActivePort records that a SetSinkPort request completed.
func (m *Model) SetSinkActivePort(port string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sink != nil {
		m.sink.ActivePort = port
	}
}

// SpeakerPort returns the cached loudspeaker port name on the tracked
// sink.
func (m *Model) SpeakerPort() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaker, m.speaker != ""
}

// SetSource installs or replaces the tracked source.
func (m *Model) SetSource(index, cardIndex uint32, name, activePort string, ports []Port, flavor BackendFlavor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := newEndpoint(index, cardIndex, name, activePort, ports, flavor)
	m.source = &e
}

// Source returns a copy of the tracked source, or false if absent.
func (m *Model) Source() (Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.source == nil {
		return Endpoint{}, false
	}
	return *m.source, true
}

// DropSource forgets the tracked source and its port-availability map.
func (m *Model) DropSource(index uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.source != nil && m.source.Index == index {
		m.source = nil
	}
}

// SetSourceActivePort records that a SetSourcePort request completed.
func (m *Model) SetSourceActivePort(port string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.source != nil {
		m.source.ActivePort = port
	}
}

// UpdateSinkPortAvailability updates the known-availability entry for a
// port on the tracked sink and reports whether the known value actually
// changed (spec.md §4.2).
func (m *Model) UpdateSinkPortAvailability(name string, avail Availability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return updateAvailability(m.sink, name, avail)
}

// UpdateSourcePortAvailability is the source-side twin of
// UpdateSinkPortAvailability.
func (m *Model) UpdateSourcePortAvailability(name string, avail Availability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return updateAvailability(m.source, name, avail)
}

func updateAvailability(e *Endpoint, name string, avail Availability) bool {
	if e == nil || avail == AvailabilityUnknown {
		return false
	}
	prev, had := e.knownAvailability[name]
	if had && prev == avail {
		return false
	}
	e.knownAvailability[name] = avail
	for i := range e.Ports {
		if e.Ports[i].Name == name {
			e.Ports[i].Availability = avail
		}
	}
	return true
}

// Mode returns the last successful mode selection.
func (m *Model) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SetMode records a successful SelectMode completion.
func (m *Model) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}
