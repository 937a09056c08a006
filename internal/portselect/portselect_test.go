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

package portselect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mobian-project/callaudiod/internal/topology"
)

func port(name string, prio uint32, avail topology.Availability) topology.Port {
	return topology.Port{Name: name, Priority: prio, Availability: avail}
}

func TestNativeHighestPriorityWins(t *testing.T) {
	ports := []topology.Port{
		port("earpiece", 50, topology.AvailabilityYes),
		port("speaker", 60, topology.AvailabilityYes),
		port("headphones", 80, topology.AvailabilityYes),
	}
	name, ok := Select(ports, topology.Native, "", Output)
	assert.True(t, ok)
	assert.Equal(t, "headphones", name)
}

func TestNativeExcludesSpeaker(t *testing.T) {
	ports := []topology.Port{
		port("earpiece", 50, topology.AvailabilityYes),
		port("speaker", 90, topology.AvailabilityYes),
	}
	name, ok := Select(ports, topology.Native, "speaker", Output)
	assert.True(t, ok)
	assert.Equal(t, "earpiece", name)
}

func TestNativeSkipsUnavailable(t *testing.T) {
	ports := []topology.Port{
		port("earpiece", 90, topology.AvailabilityNo),
		port("speaker", 50, topology.AvailabilityYes),
	}
	name, ok := Select(ports, topology.Native, "", Output)
	assert.True(t, ok)
	assert.Equal(t, "speaker", name)
}

func TestNativeTieBrokenByFirstEncountered(t *testing.T) {
	ports := []topology.Port{
		port("a", 70, topology.AvailabilityYes),
		port("b", 70, topology.AvailabilityYes),
	}
	name, ok := Select(ports, topology.Native, "", Output)
	assert.True(t, ok)
	assert.Equal(t, "a", name)
}

func TestNativeNoCandidateReturnsFalse(t *testing.T) {
	ports := []topology.Port{
		port("earpiece", 90, topology.AvailabilityNo),
	}
	_, ok := Select(ports, topology.Native, "", Output)
	assert.False(t, ok)
}

func TestDroidOutputPrefersWiredHeadset(t *testing.T) {
	ports := []topology.Port{
		port("output-speaker", 0, topology.AvailabilityYes),
		port("output-wired_headset", 0, topology.AvailabilityYes),
		port("output-earpiece", 0, topology.AvailabilityYes),
	}
	name, ok := Select(ports, topology.Droid, "", Output)
	assert.True(t, ok)
	assert.Equal(t, "output-wired_headset", name)
}

func TestDroidOutputFallsBackToSpeakerThenEarpiece(t *testing.T) {
	ports := []topology.Port{
		port("output-speaker", 0, topology.AvailabilityYes),
		port("output-earpiece", 0, topology.AvailabilityYes),
	}
	name, ok := Select(ports, topology.Droid, "", Output)
	assert.True(t, ok)
	assert.Equal(t, "output-speaker", name)

	ports = []topology.Port{port("output-earpiece", 0, topology.AvailabilityYes)}
	name, ok = Select(ports, topology.Droid, "", Output)
	assert.True(t, ok)
	assert.Equal(t, "output-earpiece", name)
}

func TestDroidOutputExcludesSpeakerForCallMode(t *testing.T) {
	ports := []topology.Port{
		port("output-speaker", 0, topology.AvailabilityYes),
		port("output-earpiece", 0, topology.AvailabilityYes),
	}
	name, ok := Select(ports, topology.Droid, "output-speaker", Output)
	assert.True(t, ok)
	assert.Equal(t, "output-earpiece", name)
}

func TestDroidInputPrefersWiredHeadsetThenBuiltinMic(t *testing.T) {
	ports := []topology.Port{
		port("input-builtin_mic", 0, topology.AvailabilityYes),
		port("input-wired_headset", 0, topology.AvailabilityYes),
	}
	name, ok := Select(ports, topology.Droid, "", Input)
	assert.True(t, ok)
	assert.Equal(t, "input-wired_headset", name)

	ports = []topology.Port{port("input-builtin_mic", 0, topology.AvailabilityYes)}
	name, ok = Select(ports, topology.Droid, "", Input)
	assert.True(t, ok)
	assert.Equal(t, "input-builtin_mic", name)
}

func TestDroidNoNamedCandidateReturnsFalse(t *testing.T) {
	ports := []topology.Port{port("output-unusual", 0, topology.AvailabilityYes)}
	_, ok := Select(ports, topology.Droid, "", Output)
	assert.False(t, ok)
}

func TestSelectorIsPure(t *testing.T) {
	ports := []topology.Port{
		port("earpiece", 50, topology.AvailabilityYes),
		port("speaker", 60, topology.AvailabilityYes),
	}
	name1, ok1 := Select(ports, topology.Native, "", Output)
	name2, ok2 := Select(ports, topology.Native, "", Output)
	assert.Equal(t, name1, name2)
	assert.Equal(t, ok1, ok2)
}
