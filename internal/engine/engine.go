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

// Package engine implements spec.md §4.5, component C6: the
// mode-transition state machine. Each public method expands a user
// intent into a chain of blocking server requests run on its own
// goroutine; the goroutine's sequential control flow is the chain, and
// the suspension points are the Conn calls themselves (see spec.md §9's
// design note on modeling the callback chain as an async task rather
// than nested callbacks).
package engine

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mobian-project/callaudiod/internal/caerr"
	"github.com/mobian-project/callaudiod/internal/portselect"
	"github.com/mobian-project/callaudiod/internal/server"
	"github.com/mobian-project/callaudiod/internal/topology"
	"github.com/mobian-project/callaudiod/internal/ucm"
)

// Engine executes Operations against conn, mutating model as steps
// complete.
type Engine struct {
	conn  server.Conn
	model *topology.Model
	log   *logrus.Entry
}

// New builds an Engine bound to conn and model.
func New(conn server.Conn, model *topology.Model, log *logrus.Entry) *Engine {
	return &Engine{conn: conn, model: model, log: log}
}

// finalize wraps done in a sync.Once so the completion handle is
// invoked exactly once per Operation (spec.md §3, §8), regardless of
// how many return paths a chain has.
func finalize(done func(bool)) func(bool) {
	var once sync.Once
	return func(ok bool) {
		once.Do(func() { done(ok) })
	}
}

// SelectMode runs the SelectMode(target) chain of spec.md §4.5.
func (e *Engine) SelectMode(ctx context.Context, target topology.Mode, done func(bool)) {
	finish := finalize(done)
	go e.runSelectMode(ctx, target, finish)
}

func (e *Engine) runSelectMode(ctx context.Context, target topology.Mode, finish func(bool)) {
	if target != topology.Call {
		go e.implicitUnmute(ctx)
	}

	card, ok := e.model.Card()
	if !ok {
		e.log.WithError(caerr.ErrNoCard).Warn("SelectMode: no tracked card")
		finish(false)
		return
	}

	if !card.HasVoiceProfile {
		if _, ok := e.model.Sink(); !ok {
			e.log.WithError(caerr.ErrNoSink).Warn("SelectMode: no tracked sink")
			finish(false)
			return
		}
		e.runPortOnlyBranch(ctx, target, finish)
		return
	}

	cardInfo, err := e.conn.GetCardInfo(ctx, card.Index)
	if err != nil {
		e.log.WithError(err).Error("SelectMode: failed to fetch card info")
		finish(false)
		return
	}
	e.runProfileBranch(ctx, cardInfo, target, finish)
}

// implicitUnmute is the fire-and-forget pre-step of spec.md §4.5 step 1:
// it does not gate the main chain and uses its own (unreported)
// completion. If no source is tracked the original C implementation
// would still issue a request against an invalid (negative) index; the
// Go Conn interface has no way to express "invalid index" as a request,
// so this deliberately becomes a no-op instead of the upstream bug (see
// DESIGN.md).
func (e *Engine) implicitUnmute(ctx context.Context) {
	source, ok := e.model.Source()
	if !ok {
		return
	}
	info, err := e.conn.GetSourceInfo(ctx, source.Index)
	if err != nil {
		e.log.WithError(err).Debug("implicit unmute: failed to fetch source")
		return
	}
	if !info.Mute {
		return
	}
	if err := e.conn.SetSourceMute(ctx, source.Index, false); err != nil {
		e.log.WithError(err).Debug("implicit unmute: SetSourceMute failed")
	}
}

// profileNames returns the (default, voicecall) profile-name pair for
// the back-end flavor the card's own profile names imply: droid
// profiles are named literally "default"/"voicecall", native profiles
// use the UCM HiFi/Voice Call verbs.
func profileNames(profiles []server.ProfileInfo) (defaultProfile, voicecallProfile string, flavor topology.BackendFlavor) {
	for _, p := range profiles {
		if p.Name == ucm.DroidDefaultProfile || p.Name == ucm.DroidVoicecallProfile {
			return ucm.DroidDefaultProfile, ucm.DroidVoicecallProfile, topology.Droid
		}
	}
	return ucm.HiFiVerb, ucm.VoiceCallVerb, topology.Native
}

func (e *Engine) runProfileBranch(ctx context.Context, cardInfo server.CardInfo, target topology.Mode, finish func(bool)) {
	defaultProfile, voicecallProfile, flavor := profileNames(cardInfo.Profiles)

	switch {
	case cardInfo.ActiveProfile == voicecallProfile && target == topology.Default:
		e.setProfileThen(ctx, cardInfo.Index, defaultProfile, flavor, target, finish)
	case cardInfo.ActiveProfile == defaultProfile && target == topology.Call:
		e.setProfileThen(ctx, cardInfo.Index, voicecallProfile, flavor, target, finish)
	default:
		e.model.SetMode(target)
		finish(true)
	}
}

func (e *Engine) setProfileThen(ctx context.Context, cardIndex uint32, profile string, flavor topology.BackendFlavor, target topology.Mode, finish func(bool)) {
	if err := e.conn.SetCardProfile(ctx, cardIndex, profile); err != nil {
		e.log.WithError(err).Warn("SetCardProfile failed")
		finish(false)
		return
	}
	e.model.SetCardProfile(profile)

	if flavor == topology.Native {
		e.model.SetMode(target)
		finish(true)
		return
	}
	e.runDroidParkingDance(ctx, target, finish)
}

// runDroidParkingDance implements the three-step droid sequence of
// spec.md §4.5: park the sink, park the source, then run the normal
// output/input port steps.
func (e *Engine) runDroidParkingDance(ctx context.Context, target topology.Mode, finish func(bool)) {
	sink, ok := e.model.Sink()
	if !ok {
		e.log.WithError(caerr.ErrNoSink).Warn("droid parking: no tracked sink")
		finish(false)
		return
	}
	if err := e.conn.SetSinkPort(ctx, sink.Index, ucm.DroidOutputParking); err != nil {
		e.log.WithError(err).Warn("droid parking: SetSinkPort(output-parking) failed")
		finish(false)
		return
	}
	e.model.SetSinkActivePort(ucm.DroidOutputParking)

	source, ok := e.model.Source()
	if !ok {
		e.log.WithError(caerr.ErrNoSource).Warn("droid parking: no tracked source")
		finish(false)
		return
	}
	if err := e.conn.SetSourcePort(ctx, source.Index, ucm.DroidInputParking); err != nil {
		e.log.WithError(err).Warn("droid parking: SetSourcePort(input-parking) failed")
		finish(false)
		return
	}
	e.model.SetSourceActivePort(ucm.DroidInputParking)

	e.runOutputPortStep(ctx, selectModeTarget{mode: target}, func(ok bool) {
		if !ok {
			finish(false)
			return
		}
		e.model.SetMode(target)
		finish(true)
	})
}

func (e *Engine) runPortOnlyBranch(ctx context.Context, target topology.Mode, finish func(bool)) {
	e.runOutputPortStep(ctx, selectModeTarget{mode: target}, func(ok bool) {
		if !ok {
			finish(false)
			return
		}
		e.model.SetMode(target)
		finish(true)
	})
}

// outputTarget abstracts the three ways OutputPortStep's target port
// can be computed (spec.md §4.5): SelectMode, EnableSpeaker(true) and
// EnableSpeaker(false).
type outputTarget interface {
	resolve(sink topology.Endpoint, speaker string) (name string, ok bool)
}

type selectModeTarget struct{ mode topology.Mode }

func (s selectModeTarget) resolve(sink topology.Endpoint, speaker string) (string, bool) {
	exclude := ""
	if s.mode == topology.Call {
		exclude = speaker
	}
	return portselect.Select(sink.Ports, sink.Flavor, exclude, portselect.Output)
}

type enableSpeakerTarget struct{ enable bool }

func (s enableSpeakerTarget) resolve(sink topology.Endpoint, speaker string) (string, bool) {
	if s.enable {
		return speaker, speaker != ""
	}
	return portselect.Select(sink.Ports, sink.Flavor, speaker, portselect.Output)
}

// runOutputPortStep implements OutputPortStep of spec.md §4.5. It
// deliberately does not special-case an unresolved target (selector
// "none"): the original implementation compares target_port with the
// active port name without a null check, and may go on to request an
// empty-string port. That is preserved here as documented,
// bug-compatible behavior (see DESIGN.md and spec.md §9).
func (e *Engine) runOutputPortStep(ctx context.Context, target outputTarget, next func(bool)) {
	sink, ok := e.model.Sink()
	if !ok {
		e.log.WithError(caerr.ErrNoSink).Warn("OutputPortStep: no tracked sink")
		next(false)
		return
	}
	info, err := e.conn.GetSinkInfo(ctx, sink.Index)
	if err != nil {
		e.log.WithError(err).Error("OutputPortStep: failed to fetch sink info")
		next(false)
		return
	}
	speaker, _ := e.model.SpeakerPort()
	name, ok := target.resolve(sink, speaker)
	if !ok {
		e.log.Warn("OutputPortStep: port selector returned no candidate")
	}

	if name == info.ActivePort {
		e.continueAfterOutput(ctx, sink.Flavor, next)
		return
	}
	if err := e.conn.SetSinkPort(ctx, sink.Index, name); err != nil {
		e.log.WithError(err).Warn("OutputPortStep: SetSinkPort failed")
		next(false)
		return
	}
	e.model.SetSinkActivePort(name)
	e.continueAfterOutput(ctx, sink.Flavor, next)
}

func (e *Engine) continueAfterOutput(ctx context.Context, flavor topology.BackendFlavor, next func(bool)) {
	if flavor != topology.Droid {
		next(true)
		return
	}
	e.runInputPortStep(ctx, next)
}

// runInputPortStep implements InputPortStep of spec.md §4.5: it only
// ever runs for the droid back-end, reached from OutputPortStep's
// continuation.
func (e *Engine) runInputPortStep(ctx context.Context, next func(bool)) {
	source, ok := e.model.Source()
	if !ok {
		e.log.WithError(caerr.ErrNoSource).Warn("InputPortStep: no tracked source")
		next(false)
		return
	}
	info, err := e.conn.GetSourceInfo(ctx, source.Index)
	if err != nil {
		e.log.WithError(err).Error("InputPortStep: failed to fetch source info")
		next(false)
		return
	}
	name, ok := portselect.Select(source.Ports, source.Flavor, "", portselect.Input)
	if !ok {
		e.log.Warn("InputPortStep: port selector returned no candidate")
	}
	if name == info.ActivePort {
		next(true)
		return
	}
	if err := e.conn.SetSourcePort(ctx, source.Index, name); err != nil {
		e.log.WithError(err).Warn("InputPortStep: SetSourcePort failed")
		next(false)
		return
	}
	e.model.SetSourceActivePort(name)
	next(true)
}

// EnableSpeaker runs the EnableSpeaker(enable) chain of spec.md §4.5:
// no profile change, no parking, just OutputPortStep (which still
// chains into InputPortStep on droid, per "run OutputPortStep as
// above").
func (e *Engine) EnableSpeaker(ctx context.Context, enable bool, done func(bool)) {
	finish := finalize(done)
	go func() {
		if _, ok := e.model.Sink(); !ok {
			e.log.WithError(caerr.ErrNoSink).Warn("EnableSpeaker: no tracked sink")
			finish(false)
			return
		}
		e.runOutputPortStep(ctx, enableSpeakerTarget{enable: enable}, finish)
	}()
}

// MuteMic runs the MuteMic(mute) chain of spec.md §4.5.
func (e *Engine) MuteMic(ctx context.Context, mute bool, done func(bool)) {
	finish := finalize(done)
	go func() {
		source, ok := e.model.Source()
		if !ok {
			e.log.WithError(caerr.ErrNoSource).Warn("MuteMic: no tracked source")
			finish(false)
			return
		}
		info, err := e.conn.GetSourceInfo(ctx, source.Index)
		if err != nil {
			e.log.WithError(err).Error("MuteMic: failed to fetch source info")
			finish(false)
			return
		}
		if info.Mute == mute {
			finish(true)
			return
		}
		if err := e.conn.SetSourceMute(ctx, source.Index, mute); err != nil {
			e.log.WithError(err).Warn("MuteMic: SetSourceMute failed")
			finish(false)
			return
		}
		finish(true)
	}()
}
