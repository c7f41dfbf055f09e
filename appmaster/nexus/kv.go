/*
Copyright 2017 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package nexus adapts the master to its durable key/value store. The KV
// interface models the store itself; Store layers the job-record codec and
// boot-time reload on top of any backend.
package nexus

import (
	"errors"
)

// ErrNotFound is returned by Get for keys that do not exist.
var ErrNotFound = errors.New("key not found")

// ErrWatchUnsupported is returned by backends that cannot stream changes.
var ErrWatchUnsupported = errors.New("watch not supported by this backend")

// Event is one observed change under a watched prefix.
type Event struct {
	Key     string
	Value   []byte
	Deleted bool
}

// KV is the durable store surface the master relies on.
type KV interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	// List returns all key/value pairs under the prefix.
	List(prefix string) (map[string][]byte, error)
	// Watch streams changes under the prefix until the backend closes the
	// channel. Backends may return ErrWatchUnsupported.
	Watch(prefix string) (<-chan Event, error)
}
