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

// Package job owns the job records and drives them through the lifecycle
// FSM as clients submit/update/terminate and workers fetch. One mutex
// protects the job index and every job's fields; events on a single job
// are linearizable under it.
package job

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/cyjseagull/galaxy/appmaster/common"
	"github.com/cyjseagull/galaxy/appmaster/fsm"
	"github.com/cyjseagull/galaxy/appmaster/nexus"
	"github.com/cyjseagull/galaxy/resman"
)

// Job is the in-memory record of one submitted job. It is owned by the
// manager and only ever touched under the manager mutex.
type Job struct {
	ID             string
	Status         common.JobStatus
	Desc           common.JobDescription
	Descs          map[string]common.JobDescription
	CurrentVersion string
	Action         common.UpdateAction
	User           common.User
	Pods           map[string]*common.PodInfo
	DeployingPods  sets.String
	CreateTime     int64
	UpdateTime     int64
}

// Manager maps events onto jobs and keeps the durable store in step.
type Manager struct {
	lock   sync.Mutex
	jobs   map[string]*Job
	table  fsm.Table
	store  *nexus.Store
	resman resman.Client
	clock  clock.Clock
	conf   common.Config

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager wires the manager to its collaborators. The clock is
// injectable so the aging and liveness checkers are testable.
func NewManager(conf common.Config, store *nexus.Store, rm resman.Client, clk clock.Clock) *Manager {
	return &Manager{
		jobs:   map[string]*Job{},
		table:  fsm.NewTable(),
		store:  store,
		resman: rm,
		clock:  clk,
		conf:   conf,
		stop:   make(chan struct{}),
	}
}

// Stop cancels every outstanding checker timer.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Add records a submitted job as Pending, persists it and arms its aging
// checker. A description without a version gets the default one.
func (m *Manager) Add(jobID string, desc common.JobDescription) common.Status {
	if desc.Version == "" {
		desc.Version = common.DefaultVersion
	}
	now := common.Micros(m.clock)
	job := &Job{
		ID:             jobID,
		Status:         common.JobPending,
		Desc:           desc,
		Descs:          map[string]common.JobDescription{desc.Version: desc},
		CurrentVersion: desc.Version,
		Action:         common.ActionNull,
		Pods:           map[string]*common.PodInfo{},
		DeployingPods:  sets.NewString(),
		CreateTime:     now,
		UpdateTime:     now,
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.persist(job)
	m.jobs[jobID] = job
	m.scheduleJobCheck(jobID)
	logrus.WithField("job", jobID).Infof("Submitted name[%s] step[%d] replica[%d] version[%s]",
		desc.Name, desc.Deploy.Step, desc.Deploy.Replica, job.CurrentVersion)
	return common.Ok
}

// Update posts the Update event with a new description.
func (m *Manager) Update(jobID string, desc common.JobDescription) common.Status {
	m.lock.Lock()
	defer m.lock.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		logrus.Warnf("Update job %s failed: job not found", jobID)
		return common.JobNotFound
	}
	return m.post(job, common.EventUpdate, &desc)
}

// Terminate captures the terminator identity and posts the Remove event.
func (m *Manager) Terminate(jobID string, user common.User, hostname string) common.Status {
	m.lock.Lock()
	defer m.lock.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return common.JobNotFound
	}
	job.User = user
	logrus.WithField("job", jobID).Infof("Terminate requested by %s from %s", user.User, hostname)
	return m.post(job, common.EventRemove, nil)
}

// HandleFetch serves one worker heartbeat: it may move a Pending job to
// Running, then dispatches on the (possibly new) status. The response
// reflects the job state at send time, read under the lock.
func (m *Manager) HandleFetch(req common.FetchRequest) common.FetchResponse {
	m.lock.Lock()
	defer m.lock.Unlock()
	job, ok := m.jobs[req.JobID]
	if !ok {
		logrus.Warnf("Fetch job[%s] from worker[%s][%s] failed: job not found",
			req.JobID, req.Endpoint, req.PodID)
		return common.FetchResponse{Status: common.JobNotFound}
	}
	// Deploy slots held by pods the liveness checker evicted are released
	// here, on the job's next fetch.
	for _, id := range job.DeployingPods.List() {
		if _, live := job.Pods[id]; !live {
			job.DeployingPods.Delete(id)
		}
	}
	if _, defined := m.table.Lookup(job.Status, common.EventFetch); defined {
		if st := m.post(job, common.EventFetch, nil); st != common.Ok {
			return common.FetchResponse{Status: st}
		}
	}

	var st common.Status
	switch job.Status {
	case common.JobPending, common.JobRunning:
		st = m.podHeartBeat(job, req)
	case common.JobUpdating:
		st = m.updatePod(job, req)
	case common.JobDestroying, common.JobFinished:
		st = m.destroyPod(job, req)
	default:
		logrus.Errorf("No dispatch for job %s in status %s", job.ID, job.Status)
		st = common.Error
	}
	if st == common.Error {
		return common.FetchResponse{Status: st}
	}
	return common.FetchResponse{Status: st, UpdateTime: job.UpdateTime, Pod: job.Desc.Pod}
}

// post runs one FSM event against a job. The transition action executes
// before the status commits; an undefined (status, event) pair is a
// conflict and leaves the job untouched.
func (m *Manager) post(job *Job, event common.JobEvent, desc *common.JobDescription) common.Status {
	trans, ok := m.table.Lookup(job.Status, event)
	if !ok {
		logrus.Infof("Job[%s][%s] reject event [%s]", job.ID, job.Status, event)
		return common.StatusConflict
	}
	if st := m.runTransition(job, trans, desc); st != common.Ok {
		return st
	}
	job.Status = trans.Next
	logrus.WithField("job", job.ID).Infof("Status trans to %s", job.Status)
	m.persist(job)
	return common.Ok
}

func (m *Manager) runTransition(job *Job, trans fsm.Transition, desc *common.JobDescription) common.Status {
	switch trans.Kind {
	case fsm.TransStart, fsm.TransRecover, fsm.TransRemove:
		return common.Ok
	case fsm.TransUpdate:
		if desc == nil {
			return common.Error
		}
		return m.updateJob(job, desc)
	case fsm.TransClear:
		return m.clearJob(job)
	}
	logrus.Errorf("Unknown transition kind %s for job %s", trans.Kind, job.ID)
	return common.Error
}

// updateJob installs a new description version and computes the action
// old-version pods must take to converge.
func (m *Manager) updateJob(job *Job, desc *common.JobDescription) common.Status {
	job.UpdateTime = common.Micros(m.clock)
	job.CurrentVersion = desc.Version
	job.Descs[desc.Version] = *desc
	job.Action = computeAction(job.Action, job.Desc.Pod.Tasks, desc.Pod.Tasks)
	job.Desc = *desc
	logrus.WithField("job", job.ID).Infof("Description updated to version %s, action %s",
		desc.Version, job.Action)
	return common.Ok
}

// computeAction compares the new task set against the current one. A
// changed task count, executable version or data-package count forces
// Rebuild; a changed data-package version alone means Reload; otherwise
// the prior action is kept. Rebuild wins over Reload.
func computeAction(prev common.UpdateAction, oldTasks, newTasks []common.TaskDescription) common.UpdateAction {
	if len(newTasks) != len(oldTasks) {
		return common.ActionRebuild
	}
	old := make(map[string]*common.TaskDescription, len(oldTasks))
	for i := range oldTasks {
		old[oldTasks[i].ID] = &oldTasks[i]
	}
	reload := false
	for i := range newTasks {
		nt := &newTasks[i]
		ot, ok := old[nt.ID]
		if !ok {
			continue
		}
		if nt.ExePackage.Version != ot.ExePackage.Version {
			return common.ActionRebuild
		}
		if len(nt.DataPackages) != len(ot.DataPackages) {
			return common.ActionRebuild
		}
		for k := range nt.DataPackages {
			if nt.DataPackages[k].Version != ot.DataPackages[k].Version {
				reload = true
			}
		}
	}
	if reload {
		return common.ActionReload
	}
	return prev
}

// clearJob fires the container-group removal at the resource manager.
// The call never blocks and never fails the transition; the job record
// itself is released by the aging checker once the job is Finished.
func (m *Manager) clearJob(job *Job) common.Status {
	m.resman.RemoveContainerGroup(job.ID, job.User)
	return common.Ok
}

// ReloadJobInfo rebuilds one job from its durable record after a restart.
// Pods are not restored; surviving workers re-register through Fetch.
func (m *Manager) ReloadJobInfo(info common.JobInfo) {
	job := &Job{
		ID:             info.JobID,
		Status:         info.Status,
		Desc:           info.Desc,
		Descs:          map[string]common.JobDescription{},
		CurrentVersion: info.Version,
		Action:         info.Action,
		User:           info.User,
		Pods:           map[string]*common.PodInfo{},
		DeployingPods:  sets.NewString(),
		CreateTime:     info.CreateTime,
		UpdateTime:     info.UpdateTime,
	}
	for _, desc := range info.Descs {
		job.Descs[desc.Version] = desc
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.jobs[job.ID] = job
	m.scheduleJobCheck(job.ID)
	logrus.WithField("job", job.ID).Infof("Reloaded in status %s", job.Status)
}

// Recover enumerates the store and reloads every job record found there.
func (m *Manager) Recover() error {
	infos, err := m.store.LoadAll()
	for _, info := range infos {
		m.ReloadJobInfo(info)
	}
	return err
}

// GetJobsOverview lists every job with pod counts derived from the
// recorded pod statuses. The pending count is clamped at zero.
func (m *Manager) GetJobsOverview() []common.JobOverview {
	m.lock.Lock()
	defer m.lock.Unlock()
	out := make([]common.JobOverview, 0, len(m.jobs))
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		job := m.jobs[id]
		var running, deploying, death int32
		for _, pod := range job.Pods {
			switch pod.Status {
			case common.PodRunning:
				running++
			case common.PodDeploying, common.PodStarting, common.PodReady:
				deploying++
			case common.PodFinished, common.PodFailed, common.PodStopping, common.PodTerminated:
				death++
			}
		}
		pending := job.Desc.Deploy.Replica - running - deploying - death
		if pending < 0 {
			pending = 0
		}
		out = append(out, common.JobOverview{
			JobID:        id,
			Desc:         job.Desc,
			Status:       job.Status,
			RunningNum:   running,
			DeployingNum: deploying,
			DeathNum:     death,
			PendingNum:   pending,
			CreateTime:   job.CreateTime,
			UpdateTime:   job.UpdateTime,
		})
	}
	return out
}

// GetJobInfo returns the full record of one job, pods included.
func (m *Manager) GetJobInfo(jobID string) (common.JobInfo, common.Status) {
	m.lock.Lock()
	defer m.lock.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return common.JobInfo{}, common.JobNotFound
	}
	return m.snapshot(job), common.Ok
}

// snapshot builds the durable form of a job. Versions and pods are sorted
// so the serialized record is deterministic.
func (m *Manager) snapshot(job *Job) common.JobInfo {
	info := common.JobInfo{
		JobID:      job.ID,
		Status:     job.Status,
		Desc:       job.Desc,
		Version:    job.CurrentVersion,
		User:       job.User,
		Action:     job.Action,
		CreateTime: job.CreateTime,
		UpdateTime: job.UpdateTime,
	}
	versions := make([]string, 0, len(job.Descs))
	for v := range job.Descs {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	for _, v := range versions {
		info.Descs = append(info.Descs, job.Descs[v])
	}
	podIDs := make([]string, 0, len(job.Pods))
	for id := range job.Pods {
		podIDs = append(podIDs, id)
	}
	sort.Strings(podIDs)
	for _, id := range podIDs {
		info.Pods = append(info.Pods, *job.Pods[id])
	}
	return info
}

// persist writes the job record to the store. Failures are logged, not
// propagated: the in-memory state has advanced and a later successful
// write reconverges the store.
func (m *Manager) persist(job *Job) {
	if err := m.store.SaveJob(m.snapshot(job)); err != nil {
		logrus.WithError(err).Warnf("Fail to put job %s to nexus", job.ID)
	}
}
