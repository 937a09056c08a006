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

package reactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobian-project/callaudiod/internal/logtest"
	"github.com/mobian-project/callaudiod/internal/server"
	"github.com/mobian-project/callaudiod/internal/servertest"
	"github.com/mobian-project/callaudiod/internal/topology"
)

func baseModel() *topology.Model {
	m := topology.New()
	m.SetCard(topology.Card{Index: 1, Name: "card", ActiveProfile: "HiFi"})
	m.SetSink(10, 1, "sink", "earpiece", []topology.Port{
		{Name: "earpiece", Priority: 50, Availability: topology.AvailabilityYes},
		{Name: "headphones", Priority: 80, Availability: topology.AvailabilityNo},
	}, topology.Native, "")
	return m
}

func TestHandleCardChangeReconcilesNativeSink(t *testing.T) {
	model := baseModel()
	conn := servertest.New()
	conn.Cards = []server.CardInfo{{Index: 1, Name: "card"}}
	conn.Sinks = []server.EndpointInfo{{
		Index: 10, CardIndex: 1, Name: "sink", ActivePort: "earpiece",
		Ports: []server.PortInfo{
			{Name: "earpiece", Priority: 50, Availability: 2},
			{Name: "headphones", Priority: 80, Availability: 2}, // now available
		},
	}}

	r := New(conn, model, logtest.Silent())
	r.Handle(context.Background(), server.Event{Facility: server.FacilityCard, Kind: server.EventChange, Index: 1})

	require.Len(t, conn.Calls, 1)
	assert.Equal(t, "SetSinkPort", conn.Calls[0].Method)
	assert.Equal(t, "headphones", conn.Calls[0].Value)

	sink, ok := model.Sink()
	require.True(t, ok)
	assert.Equal(t, "headphones", sink.ActivePort)
}

func TestHandleCardChangeIgnoresDroidSink(t *testing.T) {
	model := topology.New()
	model.SetCard(topology.Card{Index: 1, Name: "card"})
	model.SetSink(10, 1, "sink", "output-earpiece", []topology.Port{
		{Name: "output-earpiece", Availability: topology.AvailabilityYes},
	}, topology.Droid, "output-speaker")

	conn := servertest.New()
	r := New(conn, model, logtest.Silent())
	r.Handle(context.Background(), server.Event{Facility: server.FacilityCard, Kind: server.EventChange, Index: 1})

	assert.Empty(t, conn.Calls)
}

func TestHandleSinkRemoveForgetsTrackedSink(t *testing.T) {
	model := baseModel()
	conn := servertest.New()
	r := New(conn, model, logtest.Silent())

	r.Handle(context.Background(), server.Event{Facility: server.FacilitySink, Kind: server.EventRemove, Index: 10})

	_, ok := model.Sink()
	assert.False(t, ok)
}

func TestHandleSinkNewInstallsWhenUntracked(t *testing.T) {
	model := topology.New()
	model.SetCard(topology.Card{Index: 1, Name: "card"})
	conn := servertest.New()
	conn.Sinks = []server.EndpointInfo{{
		Index: 11, CardIndex: 1, Name: "new-sink", DeviceClass: "sound", ActivePort: "p",
		Ports: []server.PortInfo{{Name: "p", Availability: 2}},
	}}

	r := New(conn, model, logtest.Silent())
	r.Handle(context.Background(), server.Event{Facility: server.FacilitySink, Kind: server.EventNew, Index: 11})

	sink, ok := model.Sink()
	require.True(t, ok)
	assert.Equal(t, uint32(11), sink.Index)
}

func TestHandleSinkNewDoesNotReplaceExistingTracked(t *testing.T) {
	model := baseModel()
	conn := servertest.New()
	conn.Sinks = []server.EndpointInfo{{
		Index: 99, CardIndex: 1, Name: "other-sink", DeviceClass: "sound",
	}}

	r := New(conn, model, logtest.Silent())
	r.Handle(context.Background(), server.Event{Facility: server.FacilitySink, Kind: server.EventNew, Index: 99})

	sink, ok := model.Sink()
	require.True(t, ok)
	assert.Equal(t, uint32(10), sink.Index)
}
