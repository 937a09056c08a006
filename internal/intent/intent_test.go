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

package intent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobian-project/callaudiod/internal/caerr"
	"github.com/mobian-project/callaudiod/internal/engine"
	"github.com/mobian-project/callaudiod/internal/logtest"
	"github.com/mobian-project/callaudiod/internal/server"
	"github.com/mobian-project/callaudiod/internal/servertest"
	"github.com/mobian-project/callaudiod/internal/topology"
)

func await(t *testing.T) (func(bool), func() bool) {
	t.Helper()
	ch := make(chan bool, 1)
	return func(ok bool) { ch <- ok }, func() bool {
		select {
		case ok := <-ch:
			return ok
		case <-time.After(2 * time.Second):
			t.Fatal("Operation did not complete")
			return false
		}
	}
}

func TestSelectModeFailsSynchronouslyWithoutCard(t *testing.T) {
	model := topology.New()
	conn := servertest.New()
	f := New(engine.New(conn, model, logtest.Silent()), model, logtest.Silent())

	err := f.SelectMode(context.Background(), topology.Call, func(bool) {})
	assert.ErrorIs(t, err, caerr.ErrNoCard)
}

func TestEnableSpeakerFailsSynchronouslyWithoutSink(t *testing.T) {
	model := topology.New()
	conn := servertest.New()
	f := New(engine.New(conn, model, logtest.Silent()), model, logtest.Silent())

	err := f.EnableSpeaker(context.Background(), true, func(bool) {})
	assert.ErrorIs(t, err, caerr.ErrNoSink)
}

func TestMuteMicFailsSynchronouslyWithoutSource(t *testing.T) {
	model := topology.New()
	conn := servertest.New()
	f := New(engine.New(conn, model, logtest.Silent()), model, logtest.Silent())

	err := f.MuteMic(context.Background(), true, func(bool) {})
	assert.ErrorIs(t, err, caerr.ErrNoSource)
}

func TestMuteMicDelegatesToEngineOnSuccess(t *testing.T) {
	model := topology.New()
	model.SetCard(topology.Card{Index: 1, Name: "card"})
	model.SetSource(20, 1, "source", "builtin", []topology.Port{
		{Name: "builtin", Priority: 10, Availability: topology.AvailabilityYes},
	}, topology.Native)

	conn := servertest.New()
	conn.Sources = []server.EndpointInfo{{
		Index: 20, CardIndex: 1, Name: "source", ActivePort: "builtin", Mute: false,
	}}

	f := New(engine.New(conn, model, logtest.Silent()), model, logtest.Silent())
	done, wait := await(t)

	require.NoError(t, f.MuteMic(context.Background(), true, done))
	assert.True(t, wait())
	require.Len(t, conn.Calls, 1)
	assert.Equal(t, "SetSourceMute", conn.Calls[0].Method)
}
