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

// Package intent is the public entry point of the daemon (spec.md
// §4.6, component C7): SelectMode, EnableSpeaker and MuteMic. It
// validates the synchronous preconditions spec.md §7 assigns to each
// intent and otherwise hands off to internal/engine.
package intent

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mobian-project/callaudiod/internal/caerr"
	"github.com/mobian-project/callaudiod/internal/engine"
	"github.com/mobian-project/callaudiod/internal/topology"
)

// Facade exposes the three user-facing intents against a running
// Engine and Model.
type Facade struct {
	eng   *engine.Engine
	model *topology.Model
	log   *logrus.Entry
}

// New builds a Facade bound to eng and model.
func New(eng *engine.Engine, model *topology.Model, log *logrus.Entry) *Facade {
	return &Facade{eng: eng, model: model, log: log}
}

// SelectMode requests a transition to target. done is invoked exactly
// once with the final outcome. SelectMode fails synchronously with
// NoCard when no card is tracked at call time, invoking done with false
// before it returns; any failure while changing the card's profile, or
// its sink/source ports, is reported to done asynchronously.
func (f *Facade) SelectMode(ctx context.Context, target topology.Mode, done func(bool)) error {
	if _, ok := f.model.Card(); !ok {
		done(false)
		return caerr.ErrNoCard
	}
	f.eng.SelectMode(ctx, target, done)
	return nil
}

// EnableSpeaker requests the loudspeaker be enabled or disabled on the
// tracked sink. It fails synchronously with NoSink when no sink is
// tracked, invoking done with false before it returns.
func (f *Facade) EnableSpeaker(ctx context.Context, enable bool, done func(bool)) error {
	if _, ok := f.model.Sink(); !ok {
		done(false)
		return caerr.ErrNoSink
	}
	f.eng.EnableSpeaker(ctx, enable, done)
	return nil
}

// MuteMic requests the tracked source be muted or unmuted. It fails
// synchronously with NoSource when no source is tracked, invoking done
// with false before it returns.
func (f *Facade) MuteMic(ctx context.Context, mute bool, done func(bool)) error {
	if _, ok := f.model.Source(); !ok {
		done(false)
		return caerr.ErrNoSource
	}
	f.eng.MuteMic(ctx, mute, done)
	return nil
}
