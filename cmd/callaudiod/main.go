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

// Command callaudiod is the audio-routing daemon (spec.md §1): it
// connects to PulseAudio, discovers the internal card, and serves
// SelectMode/EnableSpeaker/MuteMic for whatever control surface is
// wired up in front of it (out of scope per spec.md, see §1 and §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mobian-project/callaudiod/internal/config"
	dmn "github.com/mobian-project/callaudiod/internal/daemon"
	"github.com/mobian-project/callaudiod/internal/pulsedbus"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "callaudiod",
	Short:         "Audio-routing controller for telephony",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (optional)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d := dmn.New(pulsedbus.New, dmn.Config{
		AppName:        cfg.AppName,
		AppID:          cfg.AppID,
		ReconnectDelay: cfg.ReconnectDelay,
	}, log)

	if cfg.Systemd {
		go watchdog(ctx, log)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	// Give discovery a moment to run on the first connection before
	// announcing readiness to systemd; a later reconnect cycle does not
	// re-notify, since READY=1 only needs to be sent once per manager
	// generation (sd_notify(7)).
	go func() {
		waitForFirstTopology(ctx, d, log)
		if cfg.Systemd {
			if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
				log.WithError(err).Warn("sd_notify READY failed")
			}
		}
	}()

	err = <-runErr
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Error("daemon exited unexpectedly")
		return err
	}
	log.Info("shutting down")
	return d.Close()
}

// waitForFirstTopology polls the daemon's model until a card is tracked
// or ctx is done, so sd_notify READY only fires once discovery has had
// a chance to run (spec.md §4.1/§4.3).
func waitForFirstTopology(ctx context.Context, d *dmn.Daemon, log *logrus.Entry) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, ok := d.Model().Card(); ok {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// watchdog pings sd_notify WATCHDOG=1 on a heartbeat ticker while ctx is
// live, satisfying a unit file's WatchdogSec= if one is configured; it
// is a no-op (SdNotify returns false, nil) when the daemon was not
// started under systemd.
func watchdog(ctx context.Context, log *logrus.Entry) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.WithError(err).Debug("sd_notify WATCHDOG failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return logrus.NewEntry(l)
}
