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

package pulsedbus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mobian-project/callaudiod/internal/server"
)

// realCardPropertyList mirrors the "Properties:" block PulseAudio
// reports for a real USB sound card (see
// _examples/other_examples/3a07fc89_gophertribe-pulseaudio__cli_test.go.go),
// where device.bus_path and sysfs.path are distinct, differently
// formatted properties.
func realCardPropertyList() map[string][]byte {
	return map[string][]byte{
		"device.bus_path":    append([]byte("platform-1c1b000.usb-usb-0:1.3:1.0"), 0),
		"sysfs.path":         append([]byte("/devices/platform/soc/1c1b000.usb/usb3/3-1/3-1.3/3-1.3:1.0/sound/card4"), 0),
		"device.form_factor": append([]byte("internal"), 0),
		"device.class":       append([]byte("sound"), 0),
	}
}

func TestCardInfoFromPropertiesReadsBusPathNotSysfsPath(t *testing.T) {
	info := cardInfoFromProperties(4, "card", "HiFi", nil, realCardPropertyList())

	assert.Equal(t, "platform-1c1b000.usb-usb-0:1.3:1.0", info.BusPath)
	assert.True(t, strings.HasPrefix(info.BusPath, "platform-"),
		"spec.md §6's card filter requires device.bus_path, which starts with \"platform-\"; "+
			"sysfs.path (%q) never does", propertyString(realCardPropertyList(), "sysfs.path"))
}

func TestCardInfoFromPropertiesMissingPropertyListYieldsEmptyFields(t *testing.T) {
	info := cardInfoFromProperties(1, "card", "", []server.ProfileInfo{{Name: "HiFi"}}, nil)

	assert.Equal(t, "", info.BusPath)
	assert.Equal(t, "", info.FormFactor)
	assert.Equal(t, "card", info.Name)
	assert.Equal(t, []server.ProfileInfo{{Name: "HiFi"}}, info.Profiles)
}

func TestPropertyStringStripsTrailingNUL(t *testing.T) {
	propList := map[string][]byte{"device.bus_path": append([]byte("platform-soc"), 0)}
	assert.Equal(t, "platform-soc", propertyString(propList, "device.bus_path"))
}

func TestPropertyStringMissingKeyReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", propertyString(map[string][]byte{}, "device.bus_path"))
}

func TestPathIndexRecoversTrailingDigits(t *testing.T) {
	index, ok := pathIndex("/org/pulseaudio/core1/card4")
	assert.True(t, ok)
	assert.Equal(t, uint32(4), index)

	_, ok = pathIndex("/org/pulseaudio/core1/sink")
	assert.False(t, ok)
}
