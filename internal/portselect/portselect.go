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

// Package portselect implements the pure port-selection rules of
// spec.md §4.4, component C5. Nothing here performs I/O or logging on
// its own; callers log the "no candidate" case themselves so that the
// selector stays a pure function of its inputs, as spec.md §8 requires
// ("identical inputs yield identical outputs").
package portselect

import "github.com/mobian-project/callaudiod/internal/topology"

// Direction distinguishes output (sink) selection from input (source)
// selection: the droid preference order differs between the two.
type Direction int

const (
	Output Direction = iota
	Input
)

const (
	droidOutputWiredHeadset = "output-wired_headset"
	droidOutputSpeaker      = "output-speaker"
	droidOutputEarpiece     = "output-earpiece"
	droidInputWiredHeadset  = "input-wired_headset"
	droidInputBuiltinMic    = "input-builtin_mic"
)

// Select returns the best port name among ports, given the back-end
// flavor, an optional excluded name ("" for none), and the selection
// direction. ok is false when no candidate remains.
func Select(ports []topology.Port, flavor topology.BackendFlavor, exclude string, dir Direction) (name string, ok bool) {
	candidates := make([]topology.Port, 0, len(ports))
	for _, p := range ports {
		if p.Availability == topology.AvailabilityNo {
			continue
		}
		if exclude != "" && p.Name == exclude {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return "", false
	}

	if flavor == topology.Droid {
		return selectDroid(candidates, dir)
	}
	return selectNative(candidates)
}

func selectDroid(candidates []topology.Port, dir Direction) (string, bool) {
	preferred := droidOutputWiredHeadset
	second := droidOutputSpeaker
	third := droidOutputEarpiece
	if dir == Input {
		preferred = droidInputWiredHeadset
		second = droidInputBuiltinMic
		third = ""
	}

	if has(candidates, preferred) {
		return preferred, true
	}
	if has(candidates, second) {
		return second, true
	}
	if third != "" && has(candidates, third) {
		return third, true
	}
	return "", false
}

func selectNative(candidates []topology.Port) (string, bool) {
	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.Priority > best.Priority {
			best = p
		}
	}
	return best.Name, true
}

func has(ports []topology.Port, name string) bool {
	for _, p := range ports {
		if p.Name == name {
			return true
		}
	}
	return false
}
