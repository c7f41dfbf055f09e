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

// Package fsm holds the job lifecycle transition table. The table is pure
// data: a lookup yields the next status and which transition action the
// manager must run before committing the move. Any (status, event) pair
// absent from the table is a conflict and must be rejected by the caller.
package fsm

import (
	"github.com/cyjseagull/galaxy/appmaster/common"
)

// TransitionKind names the action executed before a status change commits.
type TransitionKind int

const (
	// TransStart, TransRecover and TransRemove are pure status moves.
	TransStart TransitionKind = iota
	TransRecover
	TransRemove
	// TransUpdate installs a new job description and computes the update
	// action old pods will be told to take.
	TransUpdate
	// TransClear requests container-group removal from the resource
	// manager and releases the job record.
	TransClear
)

var transitionKindNames = map[TransitionKind]string{
	TransStart:   "Start",
	TransRecover: "Recover",
	TransRemove:  "Remove",
	TransUpdate:  "Update",
	TransClear:   "Clear",
}

func (k TransitionKind) String() string {
	if n, ok := transitionKindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// Key indexes the table by current status and incoming event.
type Key struct {
	Status common.JobStatus
	Event  common.JobEvent
}

// Transition is one row of the table.
type Transition struct {
	Next common.JobStatus
	Kind TransitionKind
}

// Table is the immutable (status, event) -> transition mapping.
type Table map[Key]Transition

// NewTable builds the complete job lifecycle table.
func NewTable() Table {
	return Table{
		{common.JobPending, common.EventFetch}:           {common.JobRunning, TransStart},
		{common.JobPending, common.EventUpdate}:          {common.JobUpdating, TransUpdate},
		{common.JobPending, common.EventRemove}:          {common.JobFinished, TransRemove},
		{common.JobRunning, common.EventUpdate}:          {common.JobUpdating, TransUpdate},
		{common.JobRunning, common.EventRemove}:          {common.JobDestroying, TransRemove},
		{common.JobUpdating, common.EventUpdateFinish}:   {common.JobRunning, TransRecover},
		{common.JobUpdating, common.EventRemove}:         {common.JobDestroying, TransRemove},
		{common.JobDestroying, common.EventRemoveFinish}: {common.JobFinished, TransClear},
	}
}

// Lookup returns the transition for (status, event), if one is defined.
func (t Table) Lookup(status common.JobStatus, event common.JobEvent) (Transition, bool) {
	trans, ok := t[Key{status, event}]
	return trans, ok
}
