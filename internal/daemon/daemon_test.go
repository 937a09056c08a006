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

package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobian-project/callaudiod/internal/caerr"
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

func TestRunDiscoversAndServesMuteMic(t *testing.T) {
	conn := servertest.New()
	conn.Cards = []server.CardInfo{{
		Index: 1, Name: "card", BusPath: "platform-soc", FormFactor: "internal",
	}}
	conn.Sources = []server.EndpointInfo{{
		Index: 20, CardIndex: 1, Name: "source", DeviceClass: "sound", ActivePort: "builtin",
		Ports: []server.PortInfo{{Name: "builtin", Priority: 10, Availability: 2}},
	}}

	d := New(func() server.Conn { return conn }, Config{AppName: "callaudiod", AppID: "callaudiod"}, logtest.Silent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.Eventually(t, func() bool {
		_, ok := d.Model().Source()
		return ok
	}, time.Second, 5*time.Millisecond)

	done, wait := await(t)
	require.NoError(t, d.MuteMic(ctx, true, done))
	assert.True(t, wait())
}

func TestSelectModeBeforeReadyFailsWithConnectionLost(t *testing.T) {
	conn := servertest.New()
	d := New(func() server.Conn { return conn }, Config{}, logtest.Silent())

	err := d.SelectMode(context.Background(), topology.Call, func(bool) {})
	assert.ErrorIs(t, err, caerr.ErrConnectionLost)
}

// TestIntentDuringReconnectGapFailsWithConnectionLost covers the
// mid-reconnect window: once a live connection drops unexpectedly, the
// facade it published must stop serving intents immediately, not just
// before the very first connection ever succeeds.
func TestIntentDuringReconnectGapFailsWithConnectionLost(t *testing.T) {
	conn := servertest.New()
	conn.Cards = []server.CardInfo{{
		Index: 1, Name: "card", BusPath: "platform-soc", FormFactor: "internal",
	}}
	conn.Sources = []server.EndpointInfo{{
		Index: 20, CardIndex: 1, Name: "source", DeviceClass: "sound", ActivePort: "builtin",
		Ports: []server.PortInfo{{Name: "builtin", Priority: 10, Availability: 2}},
	}}

	// A long ReconnectDelay holds the session in the reconnect gap for
	// the duration of the test instead of racing a real reconnect.
	d := New(func() server.Conn { return conn }, Config{ReconnectDelay: time.Hour}, logtest.Silent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.Eventually(t, func() bool {
		_, ok := d.Model().Card()
		return ok
	}, time.Second, 5*time.Millisecond)

	done, wait := await(t)
	require.NoError(t, d.MuteMic(ctx, true, done))
	assert.True(t, wait())

	conn.CloseUnexpectedly()

	require.Eventually(t, func() bool {
		_, ok := d.Model().Card()
		return !ok
	}, time.Second, 5*time.Millisecond, "onLost should drop the stale card once the connection is gone")

	err := d.SelectMode(ctx, topology.Call, func(bool) {})
	assert.ErrorIs(t, err, caerr.ErrConnectionLost)

	err = d.MuteMic(ctx, true, func(bool) {})
	assert.ErrorIs(t, err, caerr.ErrConnectionLost)
}
