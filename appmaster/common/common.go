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

// Package common holds the types shared between the job manager, the
// durable store adapter and the transport layer: statuses, events, job
// and pod descriptions, and the wire-level records.
package common

import (
	"k8s.io/apimachinery/pkg/util/clock"
)

// Status is the result code carried on every operation of the master
// surface. Workers act on it: Reload and Rebuild drive rolling updates,
// Terminate tells the worker to exit, Deny tells it to back off and retry.
type Status int

const (
	Ok Status = iota
	Error
	Deny
	Terminate
	Reload
	Rebuild
	JobNotFound
	StatusConflict
)

var statusNames = map[Status]string{
	Ok:             "Ok",
	Error:          "Error",
	Deny:           "Deny",
	Terminate:      "Terminate",
	Reload:         "Reload",
	Rebuild:        "Rebuild",
	JobNotFound:    "JobNotFound",
	StatusConflict: "StatusConflict",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "Unknown"
}

// JobStatus is the state a job occupies in the lifecycle FSM.
type JobStatus int

const (
	JobPending JobStatus = iota
	JobRunning
	JobUpdating
	JobDestroying
	JobFinished
)

var jobStatusNames = map[JobStatus]string{
	JobPending:    "Pending",
	JobRunning:    "Running",
	JobUpdating:   "Updating",
	JobDestroying: "Destroying",
	JobFinished:   "Finished",
}

func (s JobStatus) String() string {
	if n, ok := jobStatusNames[s]; ok {
		return n
	}
	return "Unknown"
}

// JobEvent is an input to the lifecycle FSM.
type JobEvent int

const (
	EventFetch JobEvent = iota
	EventUpdate
	EventUpdateFinish
	EventRemove
	EventRemoveFinish
)

var jobEventNames = map[JobEvent]string{
	EventFetch:        "Fetch",
	EventUpdate:       "Update",
	EventUpdateFinish: "UpdateFinish",
	EventRemove:       "Remove",
	EventRemoveFinish: "RemoveFinish",
}

func (e JobEvent) String() string {
	if n, ok := jobEventNames[e]; ok {
		return n
	}
	return "Unknown"
}

// PodStatus is the worker-reported state of a pod. The numeric order is
// meaningful: statuses at or past PodServing count as deployed for the
// purpose of the deploy-step gate.
type PodStatus int

const (
	PodPending PodStatus = iota
	PodDeploying
	PodStarting
	PodReady
	PodServing
	PodRunning
	PodStopping
	PodFinished
	PodFailed
	PodTerminated
)

var podStatusNames = map[PodStatus]string{
	PodPending:    "Pending",
	PodDeploying:  "Deploying",
	PodStarting:   "Starting",
	PodReady:      "Ready",
	PodServing:    "Serving",
	PodRunning:    "Running",
	PodStopping:   "Stopping",
	PodFinished:   "Finished",
	PodFailed:     "Failed",
	PodTerminated: "Terminated",
}

func (s PodStatus) String() string {
	if n, ok := podStatusNames[s]; ok {
		return n
	}
	return "Unknown"
}

// UpdateAction is computed when a job description is updated and tells
// old-version pods how to converge on the new description.
type UpdateAction int

const (
	ActionNull UpdateAction = iota
	ActionReload
	ActionRebuild
)

var updateActionNames = map[UpdateAction]string{
	ActionNull:    "Null",
	ActionReload:  "Reload",
	ActionRebuild: "Rebuild",
}

func (a UpdateAction) String() string {
	if n, ok := updateActionNames[a]; ok {
		return n
	}
	return "Unknown"
}

// DefaultVersion is assigned to a submitted description that carries no
// version of its own.
const DefaultVersion = "1.0.0"

// Package identifies one deployable archive of a task.
type Package struct {
	SourcePath string `json:"source_path,omitempty"`
	DestPath   string `json:"dest_path,omitempty"`
	Version    string `json:"version"`
}

// TaskDescription describes one task of a pod: the executable package and
// the data packages it consumes.
type TaskDescription struct {
	ID           string    `json:"id"`
	StartCmd     string    `json:"start_cmd,omitempty"`
	StopCmd      string    `json:"stop_cmd,omitempty"`
	ExePackage   Package   `json:"exe_package"`
	DataPackages []Package `json:"data_packages,omitempty"`
}

// PodDescription is the per-replica specification advertised to workers.
type PodDescription struct {
	Workspace string            `json:"workspace,omitempty"`
	Tasks     []TaskDescription `json:"tasks"`
}

// Deploy is the rollout policy of a job. Step bounds how many pods may be
// in a pre-serving state at once; Replica is the target pod count.
type Deploy struct {
	Replica int32 `json:"replica"`
	Step    int32 `json:"step"`
}

// JobDescription is one version of a job as submitted by a client.
type JobDescription struct {
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Deploy  Deploy         `json:"deploy"`
	Pod     PodDescription `json:"pod"`
}

// User identifies the caller that terminated a job.
type User struct {
	User  string `json:"user"`
	Token string `json:"token,omitempty"`
}

// PodInfo is the master-side record of one pod replica. All times are in
// microseconds.
type PodInfo struct {
	PodID         string    `json:"pod_id"`
	JobID         string    `json:"job_id"`
	Endpoint      string    `json:"endpoint"`
	Status        PodStatus `json:"status"`
	Version       string    `json:"version"`
	StartTime     int64     `json:"start_time"`
	UpdateTime    int64     `json:"update_time"`
	HeartbeatTime int64     `json:"heartbeat_time"`
}

// JobInfo is the durable form of a job: everything needed to rebuild the
// in-memory record after a restart. Pods are included for observability
// but are rebuilt from worker fetches, not from the store.
type JobInfo struct {
	JobID      string           `json:"job_id"`
	Status     JobStatus        `json:"status"`
	Desc       JobDescription   `json:"desc"`
	Descs      []JobDescription `json:"descs,omitempty"`
	Version    string           `json:"version"`
	User       User             `json:"user"`
	Action     UpdateAction     `json:"action"`
	CreateTime int64            `json:"create_time"`
	UpdateTime int64            `json:"update_time"`
	Pods       []PodInfo        `json:"pods,omitempty"`
}

// JobOverview is the list-level view of a job with pod counts derived
// from the recorded pod statuses.
type JobOverview struct {
	JobID        string         `json:"job_id"`
	Desc         JobDescription `json:"desc"`
	Status       JobStatus      `json:"status"`
	RunningNum   int32          `json:"running_num"`
	DeployingNum int32          `json:"deploying_num"`
	DeathNum     int32          `json:"death_num"`
	PendingNum   int32          `json:"pending_num"`
	CreateTime   int64          `json:"create_time"`
	UpdateTime   int64          `json:"update_time"`
}

// FetchRequest is the pull-style heartbeat a worker sends for one pod.
type FetchRequest struct {
	JobID      string    `json:"job_id"`
	PodID      string    `json:"pod_id"`
	Endpoint   string    `json:"endpoint"`
	Status     PodStatus `json:"status"`
	StartTime  int64     `json:"start_time"`
	UpdateTime int64     `json:"update_time"`
}

// FetchResponse carries the action code for the worker plus the current
// pod description so the worker can converge without a second call.
type FetchResponse struct {
	Status     Status         `json:"status"`
	UpdateTime int64          `json:"update_time"`
	Pod        PodDescription `json:"pod"`
}

// Micros returns the clock's current time in microseconds.
func Micros(c clock.Clock) int64 {
	return c.Now().UnixNano() / int64(1000)
}
