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

// Package caerr enumerates the error taxonomy of spec.md §7. Every
// value is a sentinel that callers compare against with errors.Is;
// component code returns or logs the sentinel itself, unwrapped.
package caerr

import "errors"

var (
	// ErrNoCard means no card matched the platform-/internal/non-modem
	// filter at intent time.
	ErrNoCard = errors.New("no tracked card")
	// ErrNoSink means the intent required a tracked sink and none exists.
	ErrNoSink = errors.New("no tracked sink")
	// ErrNoSource means the intent required a tracked source and none
	// exists.
	ErrNoSource = errors.New("no tracked source")
	// ErrServerRequestFailed wraps a server reply that carried
	// success=false.
	ErrServerRequestFailed = errors.New("server request failed")
	// ErrConnectionLost means no live connection was bound when an
	// intent arrived (before the first connection is ready, or during
	// the reconnect gap after one is lost); the intent is refused
	// synchronously. An Operation already in flight when the connection
	// drops does not receive it.
	ErrConnectionLost = errors.New("connection lost")
	// ErrEmptyInfoPayload means a callback fired with a null info
	// payload; spec.md §7 calls this bug-compatible: log critical, skip
	// the step, let the chain stall.
	ErrEmptyInfoPayload = errors.New("empty info payload")
	// ErrAllocationFailure means an Operation could not be allocated.
	ErrAllocationFailure = errors.New("could not allocate operation")
)
