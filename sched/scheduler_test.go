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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/clock"
)

func newTestScheduler(t *testing.T) *Scheduler {
	s := NewScheduler(time.Second, clock.NewFakeClock(time.Unix(1000, 0)))
	t.Cleanup(s.Stop)
	return s
}

func prodReq() Requirement {
	return Requirement{
		Label: "prod",
		Res:   Resource{CPU: 2000, Memory: 3 * gigabyte},
	}
}

// ticks runs n placement rounds.
func ticks(s *Scheduler, n int) {
	for i := 0; i < n; i++ {
		s.scheduleOnce()
	}
}

func TestFeasiblePlacementAndCachedError(t *testing.T) {
	s := newTestScheduler(t)
	s.AddAgent("agent-a:1234", Resource{CPU: 4000, Memory: 8 * gigabyte}, []string{"prod"})

	group := s.Submit(prodReq(), 2)
	ticks(s, 2)

	containers, err := s.ShowAssignment("agent-a:1234")
	require.NoError(t, err)
	require.Len(t, containers, 2)
	for _, c := range containers {
		assert.Equal(t, ContainerAllocating, c.Status)
		assert.Equal(t, "agent-a:1234", c.Endpoint)
	}

	// A third replica cannot fit: 2x2000 millicores are gone.
	require.NoError(t, s.ScaleUp(group, 1))
	ticks(s, 1)
	all, err := s.ShowContainerGroup(group)
	require.NoError(t, err)
	require.Len(t, all, 3)
	pending := 0
	for _, c := range all {
		if c.Status != ContainerPending {
			continue
		}
		pending++
		require.NotNil(t, c.LastError)
		assert.Equal(t, NoCpu, c.LastError.Kind)
	}
	assert.Equal(t, 1, pending)
}

func TestPlacementPrefersLeastLoaded(t *testing.T) {
	s := newTestScheduler(t)
	s.AddAgent("agent-b:1234", Resource{CPU: 4000, Memory: 8 * gigabyte}, []string{"prod"})
	s.AddAgent("agent-a:1234", Resource{CPU: 4000, Memory: 8 * gigabyte}, []string{"prod"})

	s.Submit(prodReq(), 2)
	ticks(s, 2)

	// Ties break lexicographically, then load spreads the second one.
	a, err := s.ShowAssignment("agent-a:1234")
	require.NoError(t, err)
	b, err := s.ShowAssignment("agent-b:1234")
	require.NoError(t, err)
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}

func TestLabelGate(t *testing.T) {
	s := newTestScheduler(t)
	s.AddAgent("agent-a:1234", Resource{CPU: 4000, Memory: 8 * gigabyte}, nil)

	group := s.Submit(prodReq(), 1)
	ticks(s, 1)
	all, err := s.ShowContainerGroup(group)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].LastError)
	assert.Equal(t, LabelMismatch, all[0].LastError.Kind)
}

func TestRoundRobinDrainsOnePerGroup(t *testing.T) {
	s := newTestScheduler(t)
	s.AddAgent("agent-a:1234", Resource{CPU: 100000, Memory: 100 * gigabyte}, []string{"prod"})
	g1 := s.Submit(prodReq(), 3)
	g2 := s.Submit(prodReq(), 3)

	ticks(s, 1)
	placed := func(group string) int {
		n := 0
		all, err := s.ShowContainerGroup(group)
		require.NoError(t, err)
		for _, c := range all {
			if c.Status == ContainerAllocating {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, placed(g1))
	assert.Equal(t, 1, placed(g2))

	ticks(s, 2)
	assert.Equal(t, 3, placed(g1))
	assert.Equal(t, 3, placed(g2))
}

func TestChangeStatusLifecycle(t *testing.T) {
	s := newTestScheduler(t)
	s.AddAgent("agent-a:1234", Resource{CPU: 4000, Memory: 8 * gigabyte}, []string{"prod"})
	group := s.Submit(prodReq(), 1)
	ticks(s, 1)

	all, _ := s.ShowContainerGroup(group)
	require.Len(t, all, 1)
	id := all[0].ID

	require.NoError(t, s.ChangeStatus(id, ContainerRunning))
	all, _ = s.ShowContainerGroup(group)
	assert.Equal(t, ContainerRunning, all[0].Status)

	// Terminated releases the agent's resources and drops the replica.
	require.NoError(t, s.ChangeStatus(id, ContainerTerminated))
	assigned, err := s.ShowAssignment("agent-a:1234")
	require.NoError(t, err)
	assert.Empty(t, assigned)
	assert.Error(t, s.ChangeStatus(id, ContainerRunning))
}

func TestScaleDownDrainsRunningFirst(t *testing.T) {
	s := newTestScheduler(t)
	s.AddAgent("agent-a:1234", Resource{CPU: 4000, Memory: 8 * gigabyte}, []string{"prod"})
	group := s.Submit(prodReq(), 3)
	ticks(s, 2)

	require.NoError(t, s.ScaleDown(group, 2))
	all, err := s.ShowContainerGroup(group)
	require.NoError(t, err)
	var destroying, pending int
	for _, c := range all {
		switch c.Status {
		case ContainerDestroying:
			destroying++
		case ContainerPending:
			pending++
		}
	}
	// Both allocated replicas drain; the queued one survives because
	// only two were asked to go.
	assert.Equal(t, 2, destroying)
	assert.Equal(t, 1, pending)
}

func TestKillRemovesGroupWhenDrained(t *testing.T) {
	s := newTestScheduler(t)
	s.AddAgent("agent-a:1234", Resource{CPU: 4000, Memory: 8 * gigabyte}, []string{"prod"})
	group := s.Submit(prodReq(), 2)
	ticks(s, 1)

	require.NoError(t, s.Kill(group))
	all, err := s.ShowContainerGroup(group)
	require.NoError(t, err)
	// The queued replica vanished immediately; the allocated one drains.
	require.Len(t, all, 1)
	require.Equal(t, ContainerDestroying, all[0].Status)

	require.NoError(t, s.ChangeStatus(all[0].ID, ContainerTerminated))
	_, err = s.ShowContainerGroup(group)
	assert.Error(t, err)
	assert.Error(t, s.Kill(group))
}

func TestRemoveAgentRequeuesContainers(t *testing.T) {
	s := newTestScheduler(t)
	s.AddAgent("agent-a:1234", Resource{CPU: 4000, Memory: 8 * gigabyte}, []string{"prod"})
	group := s.Submit(prodReq(), 1)
	ticks(s, 1)

	s.RemoveAgent("agent-a:1234")
	all, err := s.ShowContainerGroup(group)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ContainerPending, all[0].Status)
	assert.Empty(t, all[0].Endpoint)

	// With a new agent the container lands again.
	s.AddAgent("agent-b:1234", Resource{CPU: 4000, Memory: 8 * gigabyte}, []string{"prod"})
	ticks(s, 1)
	assigned, err := s.ShowAssignment("agent-b:1234")
	require.NoError(t, err)
	assert.Len(t, assigned, 1)
}

func TestAssignedNeverExceedsTotal(t *testing.T) {
	s := newTestScheduler(t)
	s.AddAgent("agent-a:1234", Resource{CPU: 4000, Memory: 8 * gigabyte}, []string{"prod"})
	s.Submit(prodReq(), 5)
	ticks(s, 5)

	s.lock.Lock()
	defer s.lock.Unlock()
	agent := s.agents["agent-a:1234"]
	assert.LessOrEqual(t, agent.resAssigned.CPU, agent.resTotal.CPU)
	assert.LessOrEqual(t, agent.resAssigned.Memory, agent.resTotal.Memory)

	// The booked totals equal the sum over the containers present.
	var cpu, mem int64
	for _, c := range agent.containers {
		cpu += c.Allocated.CPU
		mem += c.Allocated.Memory
	}
	assert.Equal(t, cpu, agent.resAssigned.CPU)
	assert.Equal(t, mem, agent.resAssigned.Memory)
}
