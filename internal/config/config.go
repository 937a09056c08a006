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

// Package config loads the daemon's startup configuration. The process
// is configured once at startup; there is no persisted routing state
// to reload (spec.md §6).
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of /etc/callaudiod/config.yaml (or
// whatever path is passed on the command line).
type Config struct {
	// AppName and AppID are passed to server.Conn.Connect as the client
	// identity. The D-Bus backend (internal/pulsedbus) does not send them
	// to the audio server.
	AppName string `yaml:"app_name"`
	AppID   string `yaml:"app_id"`

	// LogLevel is parsed with logrus.ParseLevel; empty means "info".
	LogLevel string `yaml:"log_level"`

	// ReconnectDelay is how long Session waits between reconnect
	// attempts. The file gives it as an integer number of nanoseconds
	// under reconnect_delay_ns, which Load converts (yaml.v3 does not
	// decode integers into a time.Duration); zero means the package
	// default of one second.
	ReconnectDelay time.Duration `yaml:"-"`

	// Systemd enables sd_notify READY/WATCHDOG integration.
	Systemd bool `yaml:"systemd"`
}

// Default returns the configuration used when no file is given. AppName
// and AppID match spec.md §6's bit-exact application identity.
func Default() Config {
	return Config{
		AppName:  "CallAudio",
		AppID:    "org.mobian-project.CallAudio",
		LogLevel: "info",
		Systemd:  true,
	}
}

// Load reads and parses a YAML config file, starting from Default()
// and overriding only the fields the file sets.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	file := struct {
		Config           `yaml:",inline"`
		ReconnectDelayNS *int64 `yaml:"reconnect_delay_ns"`
	}{Config: cfg}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, err
	}
	cfg = file.Config
	if file.ReconnectDelayNS != nil {
		cfg.ReconnectDelay = time.Duration(*file.ReconnectDelayNS)
	}
	return cfg, nil
}
