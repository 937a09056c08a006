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

// Package reactor implements spec.md §4.4, component C4: react to
// subscription notifications by reconciling the topology model and
// re-running the port selector when availability changes.
package reactor

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mobian-project/callaudiod/internal/portselect"
	"github.com/mobian-project/callaudiod/internal/server"
	"github.com/mobian-project/callaudiod/internal/topology"
	"github.com/mobian-project/callaudiod/internal/ucm"
)

// Reactor dispatches subscription events against a topology Model,
// issuing corrective requests back through a server.Conn.
type Reactor struct {
	conn  server.Conn
	model *topology.Model
	log   *logrus.Entry
}

// New builds a Reactor bound to conn and model. Call Handle as the
// Subscribe callback (see internal/server.Conn.Subscribe).
func New(conn server.Conn, model *topology.Model, log *logrus.Entry) *Reactor {
	return &Reactor{conn: conn, model: model, log: log}
}

// Handle processes one subscription Event (spec.md §4.4).
func (r *Reactor) Handle(ctx context.Context, ev server.Event) {
	switch ev.Facility {
	case server.FacilitySink:
		r.handleSink(ctx, ev)
	case server.FacilitySource:
		r.handleSource(ctx, ev)
	case server.FacilityCard:
		r.handleCard(ctx, ev)
	}
}

func (r *Reactor) handleSink(ctx context.Context, ev server.Event) {
	switch ev.Kind {
	case server.EventRemove:
		r.model.DropSink(ev.Index)
	case server.EventNew:
		info, err := r.conn.GetSinkInfo(ctx, ev.Index)
		if err != nil {
			r.log.WithError(err).Warn("failed to fetch new sink")
			return
		}
		installIfUntracked(r, info, true)
	}
}

func (r *Reactor) handleSource(ctx context.Context, ev server.Event) {
	switch ev.Kind {
	case server.EventRemove:
		r.model.DropSource(ev.Index)
	case server.EventNew:
		info, err := r.conn.GetSourceInfo(ctx, ev.Index)
		if err != nil {
			r.log.WithError(err).Warn("failed to fetch new source")
			return
		}
		installIfUntracked(r, info, false)
	}
}

// installIfUntracked mirrors the Sink/Source filter of spec.md §4.3:
// only install if no sink/source is yet tracked, only for sound-class
// endpoints on the tracked card.
func installIfUntracked(r *Reactor, info server.EndpointInfo, isSink bool) {
	card, ok := r.model.Card()
	if !ok || info.DeviceClass != "sound" || info.CardIndex != card.Index {
		return
	}
	if isSink {
		if _, tracked := r.model.Sink(); tracked {
			return
		}
		flavor := flavorOf(info.DeviceAPI)
		r.model.SetSink(info.Index, info.CardIndex, info.Name, info.ActivePort, toPorts(info.Ports), flavor, "")
		return
	}
	if _, tracked := r.model.Source(); tracked {
		return
	}
	flavor := flavorOf(info.DeviceAPI)
	r.model.SetSource(info.Index, info.CardIndex, info.Name, info.ActivePort, toPorts(info.Ports), flavor)
}

// handleCard reconciles ports on Change events matching the tracked
// card, for Native-flavored endpoints only; Droid endpoints are never
// reconciled automatically (spec.md §4.4).
func (r *Reactor) handleCard(ctx context.Context, ev server.Event) {
	if ev.Kind != server.EventChange {
		return
	}
	card, ok := r.model.Card()
	if !ok || card.Index != ev.Index {
		return
	}
	if sink, ok := r.model.Sink(); ok && sink.Flavor == topology.Native {
		r.reconcileSink(ctx, sink.Index)
	}
	if source, ok := r.model.Source(); ok && source.Flavor == topology.Native {
		r.reconcileSource(ctx, source.Index)
	}
}

func (r *Reactor) reconcileSink(ctx context.Context, index uint32) {
	info, err := r.conn.GetSinkInfo(ctx, index)
	if err != nil {
		r.log.WithError(err).Warn("failed to refresh sink during reconciliation")
		return
	}
	changed := false
	for _, p := range info.Ports {
		if topology.Availability(p.Availability) == topology.AvailabilityUnknown {
			continue
		}
		if r.model.UpdateSinkPortAvailability(p.Name, topology.Availability(p.Availability)) {
			changed = true
		}
	}
	if !changed {
		return
	}
	sink, ok := r.model.Sink()
	if !ok {
		return
	}
	name, ok := portselect.Select(sink.Ports, sink.Flavor, "", portselect.Output)
	if !ok {
		r.log.Warn("port selector returned no candidate during sink reconciliation")
		return
	}
	if err := r.conn.SetSinkPort(ctx, sink.Index, name); err != nil {
		r.log.WithError(err).Warn("failed to set sink port during reconciliation")
		return
	}
	r.model.SetSinkActivePort(name)
}

func (r *Reactor) reconcileSource(ctx context.Context, index uint32) {
	info, err := r.conn.GetSourceInfo(ctx, index)
	if err != nil {
		r.log.WithError(err).Warn("failed to refresh source during reconciliation")
		return
	}
	changed := false
	for _, p := range info.Ports {
		if topology.Availability(p.Availability) == topology.AvailabilityUnknown {
			continue
		}
		if r.model.UpdateSourcePortAvailability(p.Name, topology.Availability(p.Availability)) {
			changed = true
		}
	}
	if !changed {
		return
	}
	source, ok := r.model.Source()
	if !ok {
		return
	}
	name, ok := portselect.Select(source.Ports, source.Flavor, "", portselect.Input)
	if !ok {
		r.log.Warn("port selector returned no candidate during source reconciliation")
		return
	}
	if err := r.conn.SetSourcePort(ctx, source.Index, name); err != nil {
		r.log.WithError(err).Warn("failed to set source port during reconciliation")
		return
	}
	r.model.SetSourceActivePort(name)
}

func flavorOf(deviceAPI string) topology.BackendFlavor {
	if deviceAPI == ucm.DeviceAPIDroidHAL {
		return topology.Droid
	}
	return topology.Native
}

func toPorts(ports []server.PortInfo) []topology.Port {
	out := make([]topology.Port, len(ports))
	for i, p := range ports {
		out[i] = topology.Port{Name: p.Name, Priority: p.Priority, Availability: topology.Availability(p.Availability)}
	}
	return out
}
