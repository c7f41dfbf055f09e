/*
Copyright 2016 The Kubernetes Authors.

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

package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gigabyte = int64(1) << 30

func testAgent() *Agent {
	return NewAgent("agent-0:1234", Resource{
		CPU:    4000,
		Memory: 8 * gigabyte,
		Volumes: []Volume{
			{Medium: MediumDisk, Size: 100 * gigabyte},
			{Medium: MediumDisk, Size: 50 * gigabyte},
			{Medium: MediumSsd, Size: 20 * gigabyte},
		},
	}, []string{"prod"})
}

func reqWith(mutate func(*Requirement)) *Requirement {
	req := &Requirement{
		Res: Resource{CPU: 1000, Memory: gigabyte},
	}
	if mutate != nil {
		mutate(req)
	}
	return req
}

func TestCanPutOrdering(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Requirement)
		want   ResourceErrorKind
	}{
		{
			name: "label mismatch wins over cpu",
			mutate: func(r *Requirement) {
				r.Label = "staging"
				r.Res.CPU = 100000
			},
			want: LabelMismatch,
		},
		{
			name: "cpu before memory",
			mutate: func(r *Requirement) {
				r.Res.CPU = 100000
				r.Res.Memory = 100 * gigabyte
			},
			want: NoCpu,
		},
		{
			name: "memory",
			mutate: func(r *Requirement) {
				r.Res.Memory = 100 * gigabyte
			},
			want: NoMemory,
		},
		{
			name: "medium capacity",
			mutate: func(r *Requirement) {
				r.Res.Volumes = []Volume{{Medium: MediumSsd, Size: 30 * gigabyte}}
			},
			want: NoMedium,
		},
		{
			name: "device count",
			mutate: func(r *Requirement) {
				r.Res.Volumes = []Volume{
					{Medium: MediumDisk, Size: gigabyte},
					{Medium: MediumDisk, Size: gigabyte},
					{Medium: MediumDisk, Size: gigabyte},
				}
			},
			want: NoDevice,
		},
		{
			name: "tmpfs after memory",
			mutate: func(r *Requirement) {
				r.Res.Memory = 6 * gigabyte
				r.Res.Volumes = []Volume{{Medium: MediumTmpfs, Size: 4 * gigabyte}}
			},
			want: NoMemoryForTmpfs,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			agent := testAgent()
			err := agent.CanPut(reqWith(tc.mutate))
			require.NotNil(t, err)
			assert.Equal(t, tc.want, err.Kind)
		})
	}
}

func TestCanPutFits(t *testing.T) {
	agent := testAgent()
	req := reqWith(func(r *Requirement) {
		r.Label = "prod"
		r.Res.Volumes = []Volume{
			{Medium: MediumDisk, Size: 60 * gigabyte},
			{Medium: MediumDisk, Size: 10 * gigabyte},
		}
		r.Res.Ports = map[string]Port{"http": {Name: "http", Port: 8080}}
	})
	assert.Nil(t, agent.CanPut(req))
}

func TestPortConflict(t *testing.T) {
	agent := testAgent()
	first := &Container{ID: "c1", Require: reqWith(func(r *Requirement) {
		r.Res.Ports = map[string]Port{"http": {Name: "http", Port: 8080}}
	})}
	require.Nil(t, agent.CanPut(first.Require))
	agent.Put(first)

	err := agent.CanPut(reqWith(func(r *Requirement) {
		r.Res.Ports = map[string]Port{"http": {Name: "http", Port: 8080}}
	}))
	require.NotNil(t, err)
	assert.Equal(t, PortConflict, err.Kind)
}

func TestNoPortOnExhaustion(t *testing.T) {
	agent := testAgent()
	for p := int32(dynamicPortBase); p < dynamicPortBase+dynamicPortCount; p++ {
		agent.ports[p] = "hog"
	}
	err := agent.CanPut(reqWith(func(r *Requirement) {
		r.Res.Ports = map[string]Port{"dyn": {Name: "dyn"}}
	}))
	require.NotNil(t, err)
	assert.Equal(t, NoPort, err.Kind)
}

func TestPutEvictAccounting(t *testing.T) {
	agent := testAgent()
	c := &Container{ID: "c1", Require: reqWith(func(r *Requirement) {
		r.Res.CPU = 2000
		r.Res.Memory = 2 * gigabyte
		r.Res.Volumes = []Volume{
			{Medium: MediumDisk, Size: 40 * gigabyte, Dest: "/data"},
			{Medium: MediumTmpfs, Size: gigabyte, Dest: "/tmp"},
		}
		r.Res.Ports = map[string]Port{
			"http": {Name: "http", Port: 8080},
			"dyn":  {Name: "dyn"},
		}
	})}
	require.Nil(t, agent.CanPut(c.Require))
	agent.Put(c)

	// Tmpfs is booked as memory; the largest fitting disk device is
	// occupied; both ports are bound to the container.
	assert.Equal(t, int64(2000), agent.resAssigned.CPU)
	assert.Equal(t, 3*gigabyte, agent.resAssigned.Memory)
	assert.Equal(t, "agent-0:1234", c.Endpoint)
	assert.Equal(t, int32(8080), c.Allocated.Ports["http"].Port)
	assert.NotZero(t, c.Allocated.Ports["dyn"].Port)
	occupied := 0
	for _, d := range agent.devices {
		if d.owner == "c1" {
			occupied++
			assert.Equal(t, MediumDisk, d.medium)
			assert.Equal(t, 100*gigabyte, d.capacity)
		}
	}
	assert.Equal(t, 1, occupied)

	agent.Evict(c)
	assert.Zero(t, agent.resAssigned.CPU)
	assert.Zero(t, agent.resAssigned.Memory)
	assert.Empty(t, agent.ports)
	assert.Empty(t, agent.containers)
	for _, d := range agent.devices {
		assert.Empty(t, d.owner)
	}
	assert.Empty(t, c.Endpoint)
}
