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

// Package ucm holds the string tokens used to recognize ALSA Use Case
// Manager verbs and droid-HAL profile/port names. None of these values
// are looked up from an actual UCM configuration; they are the fixed
// vocabulary spec.md §6 requires the core to match against.
package ucm

// Native (ALSA UCM) verb and device tokens. Voice-profile detection and
// speaker-port detection match these with strings.Contains, not
// equality, because UCM verb names commonly carry a card-specific suffix
// (e.g. "Voice Call Remap"). The engine's profile switch compares the
// active profile with HiFiVerb/VoiceCallVerb, and requests them, by
// exact name.
const (
	VoiceCallVerb = "Voice Call"
	HiFiVerb      = "HiFi"
	SpeakerToken  = "Speaker"
)

// VoicecallLiteral is the droid module's profile name, also accepted as
// a voice-profile marker on native cards per spec.md §4.3.
const VoicecallLiteral = "voicecall"

// Droid (Android HAL) profile names.
const (
	DroidDefaultProfile   = "default"
	DroidVoicecallProfile = "voicecall"
)

// Droid output port names.
const (
	DroidOutputParking     = "output-parking"
	DroidOutputSpeaker     = "output-speaker"
	DroidOutputEarpiece    = "output-earpiece"
	DroidOutputWiredHeadset = "output-wired_headset"
)

// Droid input port names.
const (
	DroidInputParking     = "input-parking"
	DroidInputBuiltinMic  = "input-builtin_mic"
	DroidInputWiredHeadset = "input-wired_headset"
)

// ModuleSwitchOnPortAvailable is the name of the native-backend module
// that must not be loaded at steady state (spec.md §4.3).
const ModuleSwitchOnPortAvailable = "module-switch-on-port-available"

// DeviceAPIDroidHAL is the device.api property value that tags a
// sink/source as droid-flavored.
const DeviceAPIDroidHAL = "droid-hal"
