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

// Package sched binds container replicas to agents under
// multi-dimensional resource constraints: cpu, memory, storage devices
// by medium, host ports and labels.
package sched

import (
	"fmt"
)

// Medium classifies a storage device or volume requirement.
type Medium int

const (
	MediumDisk Medium = iota
	MediumSsd
	MediumBmem
	// MediumTmpfs volumes consume agent memory, not devices.
	MediumTmpfs
)

var mediumNames = map[Medium]string{
	MediumDisk:  "Disk",
	MediumSsd:   "Ssd",
	MediumBmem:  "Bmem",
	MediumTmpfs: "Tmpfs",
}

func (m Medium) String() string {
	if n, ok := mediumNames[m]; ok {
		return n
	}
	return "Unknown"
}

// Volume is one storage requirement (on a container) or one device
// capacity (on an agent's total resource).
type Volume struct {
	Medium Medium `json:"medium"`
	Size   int64  `json:"size"`
	Dest   string `json:"dest,omitempty"`
}

// Port is one host-port requirement. Port 0 asks for dynamic allocation.
type Port struct {
	Name string `json:"name"`
	Port int32  `json:"port"`
}

// Resource is the multi-dimensional quantity the scheduler books. CPU is
// in millicores, Memory in bytes. On an agent's total, Volumes describe
// the host's storage devices one entry per device.
type Resource struct {
	CPU     int64           `json:"cpu"`
	Memory  int64           `json:"memory"`
	Volumes []Volume        `json:"volumes,omitempty"`
	Ports   map[string]Port `json:"ports,omitempty"`
}

// Requirement is what one container asks of an agent.
type Requirement struct {
	Label string   `json:"label,omitempty"`
	Res   Resource `json:"res"`
}

// ResourceErrorKind enumerates why an agent rejected a container.
type ResourceErrorKind int

const (
	NoCpu ResourceErrorKind = iota + 1
	NoMemory
	NoMedium
	NoDevice
	NoPort
	PortConflict
	LabelMismatch
	NoMemoryForTmpfs
)

var resourceErrorNames = map[ResourceErrorKind]string{
	NoCpu:            "NoCpu",
	NoMemory:         "NoMemory",
	NoMedium:         "NoMedium",
	NoDevice:         "NoDevice",
	NoPort:           "NoPort",
	PortConflict:     "PortConflict",
	LabelMismatch:    "LabelMismatch",
	NoMemoryForTmpfs: "NoMemoryForTmpfs",
}

func (k ResourceErrorKind) String() string {
	if n, ok := resourceErrorNames[k]; ok {
		return n
	}
	return "Unknown"
}

// ResourceError reports the first feasibility check an agent failed.
type ResourceError struct {
	Kind   ResourceErrorKind
	Detail string
}

func (e *ResourceError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func newResourceError(kind ResourceErrorKind, format string, args ...interface{}) *ResourceError {
	return &ResourceError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// tmpfsSize sums the tmpfs volumes of a requirement.
func tmpfsSize(res Resource) int64 {
	var total int64
	for _, v := range res.Volumes {
		if v.Medium == MediumTmpfs {
			total += v.Size
		}
	}
	return total
}
