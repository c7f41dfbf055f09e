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
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Dynamic host ports are handed out of this range when a requirement
// names a port without a number.
const (
	dynamicPortBase  = 8000
	dynamicPortCount = 2000
)

// device is one storage device of an agent. A device hosts at most one
// volume at a time.
type device struct {
	medium   Medium
	capacity int64
	// owner is the container id currently occupying the device, empty
	// when free.
	owner string
}

// Agent is one worker host: advertised totals, labels, and the
// containers currently bound to it. Agents are owned by the Scheduler
// and only touched under its mutex.
type Agent struct {
	Endpoint string

	labels      sets.String
	resTotal    Resource
	resAssigned Resource
	devices     []*device
	// ports maps bound host port -> owning container id.
	ports      map[int32]string
	containers map[string]*Container
}

// NewAgent builds an agent from its endpoint, total resources and
// labels. Each entry of total.Volumes describes one storage device.
func NewAgent(endpoint string, total Resource, labels []string) *Agent {
	a := &Agent{
		Endpoint:   endpoint,
		labels:     sets.NewString(labels...),
		resTotal:   total,
		ports:      map[int32]string{},
		containers: map[string]*Container{},
	}
	for _, v := range total.Volumes {
		a.devices = append(a.devices, &device{medium: v.Medium, capacity: v.Size})
	}
	return a
}

// CanPut runs the feasibility checks in their fixed order and returns
// the first failure, or nil when the container fits.
func (a *Agent) CanPut(require *Requirement) *ResourceError {
	if require.Label != "" && !a.labels.Has(require.Label) {
		return newResourceError(LabelMismatch, "agent %s lacks label %s", a.Endpoint, require.Label)
	}
	if a.resTotal.CPU-a.resAssigned.CPU < require.Res.CPU {
		return newResourceError(NoCpu, "agent %s has %d millicores free, need %d",
			a.Endpoint, a.resTotal.CPU-a.resAssigned.CPU, require.Res.CPU)
	}
	memFree := a.resTotal.Memory - a.resAssigned.Memory
	if memFree < require.Res.Memory {
		return newResourceError(NoMemory, "agent %s has %d bytes free, need %d",
			a.Endpoint, memFree, require.Res.Memory)
	}
	if err := a.checkDevices(require.Res.Volumes); err != nil {
		return err
	}
	if err := a.checkPorts(require.Res.Ports); err != nil {
		return err
	}
	if tmpfs := tmpfsSize(require.Res); tmpfs > 0 {
		if memFree-require.Res.Memory < tmpfs {
			return newResourceError(NoMemoryForTmpfs, "agent %s has %d bytes left after memory, tmpfs needs %d",
				a.Endpoint, memFree-require.Res.Memory, tmpfs)
		}
	}
	return nil
}

// checkDevices matches required volumes to free devices 1:1, largest
// first per medium. Capacity shortfalls report NoMedium; running out of
// devices reports NoDevice. Media are checked in a fixed order, and every
// capacity check runs before any device-count check.
func (a *Agent) checkDevices(volumes []Volume) *ResourceError {
	byMedium := map[Medium][]int64{}
	for _, v := range volumes {
		if v.Medium == MediumTmpfs {
			continue
		}
		byMedium[v.Medium] = append(byMedium[v.Medium], v.Size)
	}
	media := make([]Medium, 0, len(byMedium))
	freeByMedium := map[Medium][]int64{}
	for medium, sizes := range byMedium {
		media = append(media, medium)
		var free []int64
		for _, d := range a.devices {
			if d.medium == medium && d.owner == "" {
				free = append(free, d.capacity)
			}
		}
		sort.Slice(sizes, func(i, j int) bool { return sizes[i] > sizes[j] })
		sort.Slice(free, func(i, j int) bool { return free[i] > free[j] })
		freeByMedium[medium] = free
	}
	sort.Slice(media, func(i, j int) bool { return media[i] < media[j] })
	for _, medium := range media {
		sizes, free := byMedium[medium], freeByMedium[medium]
		n := len(sizes)
		if len(free) < n {
			n = len(free)
		}
		for i := 0; i < n; i++ {
			if sizes[i] > free[i] {
				return newResourceError(NoMedium, "agent %s %s device too small: need %d, largest free %d",
					a.Endpoint, medium, sizes[i], free[i])
			}
		}
	}
	for _, medium := range media {
		sizes, free := byMedium[medium], freeByMedium[medium]
		if len(sizes) > len(free) {
			return newResourceError(NoDevice, "agent %s has %d free %s devices, need %d",
				a.Endpoint, len(free), medium, len(sizes))
		}
	}
	return nil
}

func (a *Agent) checkPorts(ports map[string]Port) *ResourceError {
	dynamic := 0
	for name, p := range ports {
		if p.Port <= 0 {
			dynamic++
			continue
		}
		if owner, bound := a.ports[p.Port]; bound {
			return newResourceError(PortConflict, "agent %s port %d (%s) already bound by %s",
				a.Endpoint, p.Port, name, owner)
		}
	}
	if dynamic > 0 && a.freeDynamicPorts() < dynamic {
		return newResourceError(NoPort, "agent %s has %d dynamic ports free, need %d",
			a.Endpoint, a.freeDynamicPorts(), dynamic)
	}
	return nil
}

func (a *Agent) freeDynamicPorts() int {
	free := 0
	for p := int32(dynamicPortBase); p < dynamicPortBase+dynamicPortCount; p++ {
		if _, bound := a.ports[p]; !bound {
			free++
		}
	}
	return free
}

// Put commits the container's requirement onto the agent: cpu and memory
// (tmpfs counts as memory), devices, ports. The concrete allocation is
// recorded on the container. Callers must have passed CanPut.
func (a *Agent) Put(c *Container) {
	req := c.Require.Res
	alloc := Resource{
		CPU:    req.CPU,
		Memory: req.Memory + tmpfsSize(req),
		Ports:  map[string]Port{},
	}
	a.resAssigned.CPU += alloc.CPU
	a.resAssigned.Memory += alloc.Memory

	volumes := append([]Volume(nil), req.Volumes...)
	sort.SliceStable(volumes, func(i, j int) bool { return volumes[i].Size > volumes[j].Size })
	for _, v := range volumes {
		if v.Medium == MediumTmpfs {
			alloc.Volumes = append(alloc.Volumes, v)
			continue
		}
		if d := a.takeDevice(v, c.ID); d != nil {
			alloc.Volumes = append(alloc.Volumes, Volume{Medium: v.Medium, Size: d.capacity, Dest: v.Dest})
		}
	}
	for name, p := range req.Ports {
		port := p.Port
		if port <= 0 {
			port = a.nextDynamicPort()
		}
		a.ports[port] = c.ID
		alloc.Ports[name] = Port{Name: name, Port: port}
	}

	c.Allocated = alloc
	c.Endpoint = a.Endpoint
	a.containers[c.ID] = c
}

// takeDevice occupies the largest free device of the volume's medium
// that fits, mirroring the order CanPut validated.
func (a *Agent) takeDevice(v Volume, owner string) *device {
	var best *device
	for _, d := range a.devices {
		if d.medium != v.Medium || d.owner != "" || d.capacity < v.Size {
			continue
		}
		if best == nil || d.capacity > best.capacity {
			best = d
		}
	}
	if best != nil {
		best.owner = owner
	}
	return best
}

func (a *Agent) nextDynamicPort() int32 {
	for p := int32(dynamicPortBase); p < dynamicPortBase+dynamicPortCount; p++ {
		if _, bound := a.ports[p]; !bound {
			return p
		}
	}
	// CanPut counted free ports before Put committed anything.
	return -1
}

// Evict releases everything Put committed and detaches the container.
func (a *Agent) Evict(c *Container) {
	if _, ok := a.containers[c.ID]; !ok {
		return
	}
	a.resAssigned.CPU -= c.Allocated.CPU
	a.resAssigned.Memory -= c.Allocated.Memory
	for _, d := range a.devices {
		if d.owner == c.ID {
			d.owner = ""
		}
	}
	for port, owner := range a.ports {
		if owner == c.ID {
			delete(a.ports, port)
		}
	}
	delete(a.containers, c.ID)
	c.Allocated = Resource{}
	c.Endpoint = ""
}

// loadFraction ranks agents for placement: the mean of the cpu and
// memory assigned/total fractions. Lower is better.
func (a *Agent) loadFraction() float64 {
	var cpu, mem float64
	if a.resTotal.CPU > 0 {
		cpu = float64(a.resAssigned.CPU) / float64(a.resTotal.CPU)
	}
	if a.resTotal.Memory > 0 {
		mem = float64(a.resAssigned.Memory) / float64(a.resTotal.Memory)
	}
	return (cpu + mem) / 2
}
