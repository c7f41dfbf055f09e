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

package nexus

import (
	"strings"
	"sync"
)

type memoryKV struct {
	lock     sync.RWMutex
	data     map[string][]byte
	watchers []memoryWatcher
}

type memoryWatcher struct {
	prefix string
	ch     chan Event
}

// NewMemory creates an in-memory KV. It is the only backend with Watch
// support and is what the tests run against.
func NewMemory() KV {
	return &memoryKV{
		data: map[string][]byte{},
	}
}

func (m *memoryKV) Put(key string, value []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	m.notify(Event{Key: key, Value: v})
	return nil
}

func (m *memoryKV) Get(key string) ([]byte, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *memoryKV) Delete(key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.data[key]; !ok {
		return ErrNotFound
	}
	delete(m.data, key)
	m.notify(Event{Key: key, Deleted: true})
	return nil
}

func (m *memoryKV) List(prefix string) (map[string][]byte, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	out := map[string][]byte{}
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryKV) Watch(prefix string) (<-chan Event, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	ch := make(chan Event, 64)
	m.watchers = append(m.watchers, memoryWatcher{prefix: prefix, ch: ch})
	return ch, nil
}

// notify is called with the lock held. Watchers that cannot keep up drop
// events rather than block a Put.
func (m *memoryKV) notify(ev Event) {
	for _, w := range m.watchers {
		if !strings.HasPrefix(ev.Key, w.prefix) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
		}
	}
}
