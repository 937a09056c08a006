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

// Package discovery implements spec.md §4.3, component C3: on (re)connect,
// enumerate cards/modules/sinks/sources, identify the tracked card and
// its default sink/source, and detect voice-profile presence and
// back-end flavor.
package discovery

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mobian-project/callaudiod/internal/portselect"
	"github.com/mobian-project/callaudiod/internal/server"
	"github.com/mobian-project/callaudiod/internal/topology"
	"github.com/mobian-project/callaudiod/internal/ucm"
)

const (
	busPathPrefix    = "platform-"
	formFactorIntern = "internal"
	deviceClassModem = "modem"
	deviceClassSound = "sound"
)

// Run performs one full discovery pass against conn and installs
// whatever it finds into model. It is called once per Session.Run
// readiness transition (spec.md §4.1).
func Run(ctx context.Context, conn server.Conn, model *topology.Model, log *logrus.Entry) error {
	cards, err := conn.ListCards(ctx)
	if err != nil {
		return err
	}
	card, ok := filterCard(cards)
	if !ok {
		log.Warn("no internal card found during discovery")
		model.DropCard()
		return nil
	}
	model.SetCard(topology.Card{
		Index:           card.Index,
		Name:            card.Name,
		ActiveProfile:   card.ActiveProfile,
		Profiles:        profileNames(card.Profiles),
		HasVoiceProfile: hasVoiceProfile(card.Profiles),
	})
	log.WithFields(logrus.Fields{
		"card":              card.Name,
		"index":             card.Index,
		"has_voice_profile": hasVoiceProfile(card.Profiles),
	}).Info("tracked card discovered")

	if err := filterModules(ctx, conn, card, log); err != nil {
		return err
	}

	sinks, err := conn.ListSinks(ctx)
	if err != nil {
		return err
	}
	if sink, ok := filterEndpoint(sinks, card.Index); ok {
		installSink(ctx, conn, model, sink, log)
	}

	sources, err := conn.ListSources(ctx)
	if err != nil {
		return err
	}
	if source, ok := filterEndpoint(sources, card.Index); ok {
		installSource(ctx, conn, model, source, log)
	}
	return nil
}

func filterCard(cards []server.CardInfo) (server.CardInfo, bool) {
	for _, c := range cards {
		if strings.HasPrefix(c.BusPath, busPathPrefix) &&
			c.FormFactor == formFactorIntern &&
			c.DeviceClass != deviceClassModem {
			return c, true
		}
	}
	return server.CardInfo{}, false
}

func filterEndpoint(endpoints []server.EndpointInfo, cardIndex uint32) (server.EndpointInfo, bool) {
	for _, e := range endpoints {
		if e.DeviceClass == deviceClassSound && e.CardIndex == cardIndex {
			return e, true
		}
	}
	return server.EndpointInfo{}, false
}

func profileNames(profiles []server.ProfileInfo) []string {
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}
	return names
}

func hasVoiceProfile(profiles []server.ProfileInfo) bool {
	for _, p := range profiles {
		if strings.Contains(p.Name, ucm.VoiceCallVerb) || strings.Contains(p.Name, ucm.VoicecallLiteral) {
			return true
		}
	}
	return false
}

// filterModules unloads module-switch-on-port-available on native
// back-ends only; on droid it is deliberately left alone (spec.md
// §4.3).
func filterModules(ctx context.Context, conn server.Conn, card server.CardInfo, log *logrus.Entry) error {
	modules, err := conn.ListModules(ctx)
	if err != nil {
		return err
	}
	flavor := cardFlavor(card)
	if flavor == topology.Droid {
		return nil
	}
	for _, m := range modules {
		if m.Name == ucm.ModuleSwitchOnPortAvailable {
			log.WithField("module_index", m.Index).Info("unloading module-switch-on-port-available")
			if err := conn.UnloadModule(ctx, m.Index); err != nil {
				return err
			}
		}
	}
	return nil
}

// cardFlavor is only used to decide whether to unload the port-switch
// module; per-endpoint flavor is tagged independently once sinks and
// sources are installed (spec.md §3).
func cardFlavor(card server.CardInfo) topology.BackendFlavor {
	for _, p := range card.Profiles {
		if strings.Contains(p.Name, ucm.VoicecallLiteral) {
			return topology.Droid
		}
	}
	return topology.Native
}

func endpointFlavor(deviceAPI string) topology.BackendFlavor {
	if deviceAPI == ucm.DeviceAPIDroidHAL {
		return topology.Droid
	}
	return topology.Native
}

func toPorts(ports []server.PortInfo) []topology.Port {
	out := make([]topology.Port, len(ports))
	for i, p := range ports {
		out[i] = topology.Port{
			Name:         p.Name,
			Priority:     p.Priority,
			Availability: topology.Availability(p.Availability),
		}
	}
	return out
}

func speakerPort(flavor topology.BackendFlavor, ports []server.PortInfo) string {
	if flavor == topology.Droid {
		for _, p := range ports {
			if p.Name == ucm.DroidOutputSpeaker {
				return p.Name
			}
		}
		return ""
	}
	for _, p := range ports {
		if strings.Contains(p.Name, ucm.SpeakerToken) {
			return p.Name
		}
	}
	return ""
}

func installSink(ctx context.Context, conn server.Conn, model *topology.Model, sink server.EndpointInfo, log *logrus.Entry) {
	flavor := endpointFlavor(sink.DeviceAPI)
	model.SetSink(sink.Index, sink.CardIndex, sink.Name, sink.ActivePort, toPorts(sink.Ports), flavor, speakerPort(flavor, sink.Ports))
	selectInitialPort(ctx, conn, model, sink.Index, sink.ActivePort, toPorts(sink.Ports), flavor, portselect.Output, log)
}

func installSource(ctx context.Context, conn server.Conn, model *topology.Model, source server.EndpointInfo, log *logrus.Entry) {
	flavor := endpointFlavor(source.DeviceAPI)
	model.SetSource(source.Index, source.CardIndex, source.Name, source.ActivePort, toPorts(source.Ports), flavor)
	selectInitialPort(ctx, conn, model, source.Index, source.ActivePort, toPorts(source.Ports), flavor, portselect.Input, log)
}

func selectInitialPort(ctx context.Context, conn server.Conn, model *topology.Model, index uint32, active string, ports []topology.Port, flavor topology.BackendFlavor, dir portselect.Direction, log *logrus.Entry) {
	name, ok := portselect.Select(ports, flavor, "", dir)
	if !ok {
		log.Warn("port selector returned no candidate during discovery")
		return
	}
	if name == active {
		return
	}
	var err error
	if dir == portselect.Output {
		err = conn.SetSinkPort(ctx, index, name)
		if err == nil {
			model.SetSinkActivePort(name)
		}
	} else {
		err = conn.SetSourcePort(ctx, index, name)
		if err == nil {
			model.SetSourceActivePort(name)
		}
	}
	if err != nil {
		log.WithError(err).Warn("failed to select initial port")
	}
}
