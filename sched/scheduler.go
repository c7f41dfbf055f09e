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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"
)

// Scheduler owns the agent registry and the container groups, and runs
// the placement loop. One mutex covers agents, containers and groups; it
// is never held across an outbound call.
type Scheduler struct {
	lock       sync.Mutex
	agents     map[string]*Agent
	groups     map[string]*ContainerGroup
	containers map[string]*Container
	groupOrder []string
	rrOffset   int

	clock    clock.Clock
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler ticking at the given interval.
func NewScheduler(interval time.Duration, clk clock.Clock) *Scheduler {
	return &Scheduler{
		agents:     map[string]*Agent{},
		groups:     map[string]*ContainerGroup{},
		containers: map[string]*Container{},
		clock:      clk,
		interval:   interval,
		stop:       make(chan struct{}),
	}
}

// Start begins the background placement loop.
func (s *Scheduler) Start() {
	go func() {
		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				s.scheduleOnce()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the placement loop.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// AddAgent registers a worker host with its advertised resources.
func (s *Scheduler) AddAgent(endpoint string, total Resource, labels []string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.agents[endpoint] = NewAgent(endpoint, total, labels)
	logrus.WithField("agent", endpoint).Infof("Agent added: cpu %d, memory %d, labels %v",
		total.CPU, total.Memory, labels)
}

// RemoveAgent drops an agent. Its containers are evicted and requeued or
// deleted depending on their group's remaining target.
func (s *Scheduler) RemoveAgent(endpoint string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	agent, ok := s.agents[endpoint]
	if !ok {
		return
	}
	var ids []string
	for id := range agent.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.evictLocked(s.containers[id])
	}
	delete(s.agents, endpoint)
	logrus.WithField("agent", endpoint).Info("Agent removed")
}

// Submit creates a container group with replica pending containers and
// returns its id.
func (s *Scheduler) Submit(require Requirement, replica int) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	group := &ContainerGroup{
		ID:         "group-" + uuid.New().String(),
		Require:    &require,
		containers: map[string]*Container{},
	}
	s.groups[group.ID] = group
	s.groupOrder = append(s.groupOrder, group.ID)
	s.scaleUpLocked(group, replica)
	logrus.WithField("group", group.ID).Infof("Submitted with replica %d", replica)
	return group.ID
}

// ScaleUp appends n pending containers to the group.
func (s *Scheduler) ScaleUp(groupID string, n int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("container group %s not found", groupID)
	}
	s.scaleUpLocked(group, n)
	return nil
}

func (s *Scheduler) scaleUpLocked(group *ContainerGroup, n int) {
	for i := 0; i < n; i++ {
		group.Replica++
		c := &Container{
			ID:      fmt.Sprintf("%s.%s", group.ID, uuid.New().String()[:8]),
			GroupID: group.ID,
			Status:  ContainerPending,
			Require: group.Require,
		}
		group.containers[c.ID] = c
		group.pending = append(group.pending, c.ID)
		s.containers[c.ID] = c
	}
}

// ScaleDown drains n containers, running ones first, pending ones after.
func (s *Scheduler) ScaleDown(groupID string, n int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("container group %s not found", groupID)
	}
	var allocated, pending []string
	for id, c := range group.containers {
		switch c.Status {
		case ContainerPending:
			pending = append(pending, id)
		case ContainerDestroying, ContainerTerminated:
		default:
			allocated = append(allocated, id)
		}
	}
	sort.Strings(allocated)
	sort.Strings(pending)
	for _, id := range allocated {
		if n == 0 {
			return nil
		}
		c := group.containers[id]
		c.Status = ContainerDestroying
		group.Replica--
		n--
		logrus.Infof("Container %s draining for scale-down", id)
	}
	for _, id := range pending {
		if n == 0 {
			return nil
		}
		s.deleteContainerLocked(group.containers[id])
		group.Replica--
		n--
	}
	return nil
}

// Kill marks every container Destroying. Pending containers go away
// immediately; the group itself is removed once the last allocated
// container reports Terminated.
func (s *Scheduler) Kill(groupID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("container group %s not found", groupID)
	}
	group.killed = true
	group.Replica = 0
	var ids []string
	for id := range group.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := group.containers[id]
		if c.Status == ContainerPending {
			s.deleteContainerLocked(c)
			continue
		}
		c.Status = ContainerDestroying
	}
	s.removeGroupIfDrained(group)
	logrus.WithField("group", groupID).Info("Kill requested")
	return nil
}

// ChangeStatus applies a worker-reported status. Terminated containers
// are released and removed.
func (s *Scheduler) ChangeStatus(containerID string, status ContainerStatus) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.containers[containerID]
	if !ok {
		return fmt.Errorf("container %s not found", containerID)
	}
	logrus.Infof("Container %s status %s -> %s", containerID, c.Status, status)
	c.Status = status
	if status != ContainerTerminated {
		return nil
	}
	if agent, ok := s.agents[c.Endpoint]; ok {
		agent.Evict(c)
	}
	group := s.groups[c.GroupID]
	s.deleteContainerLocked(c)
	if group != nil {
		s.removeGroupIfDrained(group)
	}
	return nil
}

// Evict releases a container from its agent. It returns to pending if
// its group still targets a higher replica count, else it is deleted.
func (s *Scheduler) Evict(containerID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.containers[containerID]
	if !ok {
		return fmt.Errorf("container %s not found", containerID)
	}
	s.evictLocked(c)
	return nil
}

func (s *Scheduler) evictLocked(c *Container) {
	if agent, ok := s.agents[c.Endpoint]; ok {
		agent.Evict(c)
	}
	group := s.groups[c.GroupID]
	if group == nil || group.killed || s.liveCount(group) > group.Replica {
		s.deleteContainerLocked(c)
		if group != nil {
			s.removeGroupIfDrained(group)
		}
		return
	}
	c.Status = ContainerPending
	group.pending = append(group.pending, c.ID)
	logrus.Infof("Container %s evicted, back to pending", c.ID)
}

// liveCount is how many containers of the group are not on their way
// out.
func (s *Scheduler) liveCount(group *ContainerGroup) int {
	n := 0
	for _, c := range group.containers {
		if c.Status != ContainerDestroying && c.Status != ContainerTerminated {
			n++
		}
	}
	return n
}

func (s *Scheduler) deleteContainerLocked(c *Container) {
	if group, ok := s.groups[c.GroupID]; ok {
		delete(group.containers, c.ID)
		for i, id := range group.pending {
			if id == c.ID {
				group.pending = append(group.pending[:i], group.pending[i+1:]...)
				break
			}
		}
	}
	delete(s.containers, c.ID)
}

func (s *Scheduler) removeGroupIfDrained(group *ContainerGroup) {
	if !group.killed || len(group.containers) != 0 {
		return
	}
	delete(s.groups, group.ID)
	for i, id := range s.groupOrder {
		if id == group.ID {
			s.groupOrder = append(s.groupOrder[:i], s.groupOrder[i+1:]...)
			break
		}
	}
	logrus.WithField("group", group.ID).Info("Container group removed")
}

// ShowAssignment lists copies of the containers bound to one agent.
func (s *Scheduler) ShowAssignment(endpoint string) ([]Container, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	agent, ok := s.agents[endpoint]
	if !ok {
		return nil, fmt.Errorf("agent %s not found", endpoint)
	}
	return copyContainers(agent.containers), nil
}

// ShowContainerGroup lists copies of one group's containers.
func (s *Scheduler) ShowContainerGroup(groupID string) ([]Container, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("container group %s not found", groupID)
	}
	return copyContainers(group.containers), nil
}

func copyContainers(in map[string]*Container) []Container {
	ids := make([]string, 0, len(in))
	for id := range in {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Container, 0, len(ids))
	for _, id := range ids {
		out = append(out, *in[id])
	}
	return out
}

// scheduleOnce is one placement tick: each group, in round-robin order,
// gets at most one pending container placed.
func (s *Scheduler) scheduleOnce() {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := len(s.groupOrder)
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		group := s.groups[s.groupOrder[(s.rrOffset+i)%n]]
		if group == nil || len(group.pending) == 0 {
			continue
		}
		c := group.containers[group.pending[0]]
		group.pending = group.pending[1:]
		if c == nil {
			continue
		}
		if !s.placeLocked(c) {
			// Stays queued; retry next tick.
			group.pending = append(group.pending, c.ID)
		}
	}
	s.rrOffset = (s.rrOffset + 1) % n
}

// placeLocked binds one container to the least-loaded feasible agent.
// The error from the best-ranked agent is cached on failure.
func (s *Scheduler) placeLocked(c *Container) bool {
	candidates := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		candidates = append(candidates, a)
	}
	sort.Slice(candidates, func(i, j int) bool {
		li, lj := candidates[i].loadFraction(), candidates[j].loadFraction()
		if li != lj {
			return li < lj
		}
		return candidates[i].Endpoint < candidates[j].Endpoint
	})
	for rank, agent := range candidates {
		err := agent.CanPut(c.Require)
		if err == nil {
			c.Status = ContainerAllocating
			c.LastError = nil
			agent.Put(c)
			logrus.Infof("Container %s allocating on %s", c.ID, agent.Endpoint)
			return true
		}
		if rank == 0 {
			c.LastError = err
		}
	}
	if len(candidates) == 0 {
		logrus.Debugf("Container %s has no agents to land on", c.ID)
	}
	return false
}
