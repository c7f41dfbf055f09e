/*
Copyright 2018 The Kubernetes Authors.

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
	"net/url"
	"os"
	"strings"

	"github.com/peterbourgon/diskv"
)

type diskKV struct {
	dv *diskv.Diskv
}

// NewDisk creates a diskv-backed KV rooted at dir. Keys are path-escaped
// so the store paths ("/galaxy/jobs/<id>") become valid file names; the
// escaping is character-wise, so prefix listing survives it.
func NewDisk(dir string, sizeGB int) KV {
	return &diskKV{
		dv: diskv.New(diskv.Options{
			BasePath:     dir,
			CacheSizeMax: uint64(sizeGB) * 1000 * 1000 * 1000,
		}),
	}
}

func encodeKey(key string) string {
	return url.PathEscape(key)
}

func decodeKey(key string) string {
	k, err := url.PathUnescape(key)
	if err != nil {
		// Keys are only ever written through encodeKey; anything else in
		// the directory is surfaced as-is.
		return key
	}
	return k
}

func (d *diskKV) Put(key string, value []byte) error {
	return d.dv.Write(encodeKey(key), value)
}

func (d *diskKV) Get(key string) ([]byte, error) {
	v, err := d.dv.Read(encodeKey(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (d *diskKV) Delete(key string) error {
	ek := encodeKey(key)
	if !d.dv.Has(ek) {
		return ErrNotFound
	}
	return d.dv.Erase(ek)
}

func (d *diskKV) List(prefix string) (map[string][]byte, error) {
	out := map[string][]byte{}
	cancel := make(chan struct{})
	defer close(cancel)
	for ek := range d.dv.KeysPrefix(encodeKey(prefix), cancel) {
		v, err := d.dv.Read(ek)
		if err != nil {
			return nil, err
		}
		k := decodeKey(ek)
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		out[k] = v
	}
	return out, nil
}

func (d *diskKV) Watch(prefix string) (<-chan Event, error) {
	return nil, ErrWatchUnsupported
}
