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
	"time"

	"github.com/gomodule/redigo/redis"
)

type redisKV struct {
	pool *redis.Pool
}

// NewRedis creates a redis-backed KV. The address is a redis URL, e.g.
// "redis://host:6379".
func NewRedis(address string) KV {
	return &redisKV{
		pool: &redis.Pool{
			MaxIdle:     2,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.DialURL(address)
			},
		},
	}
}

func (r *redisKV) Put(key string, value []byte) error {
	conn := r.pool.Get()
	defer conn.Close()
	_, err := conn.Do("SET", key, value)
	return err
}

func (r *redisKV) Get(key string) ([]byte, error) {
	conn := r.pool.Get()
	defer conn.Close()
	v, err := redis.Bytes(conn.Do("GET", key))
	if err == redis.ErrNil {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *redisKV) Delete(key string) error {
	conn := r.pool.Get()
	defer conn.Close()
	n, err := redis.Int(conn.Do("DEL", key))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *redisKV) List(prefix string) (map[string][]byte, error) {
	conn := r.pool.Get()
	defer conn.Close()
	out := map[string][]byte{}
	cursor := 0
	for {
		reply, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", prefix+"*", "COUNT", 100))
		if err != nil {
			return nil, err
		}
		cursor, err = redis.Int(reply[0], nil)
		if err != nil {
			return nil, err
		}
		keys, err := redis.Strings(reply[1], nil)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			v, err := redis.Bytes(conn.Do("GET", k))
			if err == redis.ErrNil {
				// Deleted between SCAN and GET.
				continue
			}
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		if cursor == 0 {
			return out, nil
		}
	}
}

func (r *redisKV) Watch(prefix string) (<-chan Event, error) {
	return nil, ErrWatchUnsupported
}
