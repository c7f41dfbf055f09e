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

package job

import (
	"github.com/sirupsen/logrus"

	"github.com/cyjseagull/galaxy/appmaster/common"
)

// createPod records a new pod for a job and arms its liveness checker.
// Callers hold the manager mutex.
func (m *Manager) createPod(job *Job, podID, endpoint string) *common.PodInfo {
	now := common.Micros(m.clock)
	pod := &common.PodInfo{
		PodID:         podID,
		JobID:         job.ID,
		Endpoint:      endpoint,
		Status:        common.PodDeploying,
		Version:       job.CurrentVersion,
		StartTime:     now,
		UpdateTime:    job.UpdateTime,
		HeartbeatTime: now,
	}
	job.Pods[podID] = pod
	m.schedulePodCheck(job.ID, podID)
	logrus.WithField("job", job.ID).Infof("Created pod %s on %s version %s",
		podID, endpoint, pod.Version)
	return pod
}

// podHeartBeat serves fetches while the job is Pending or Running: it
// refreshes known pods, re-admits pods that survived a master restart and
// applies the step/replica gates to brand-new pods.
func (m *Manager) podHeartBeat(job *Job, req common.FetchRequest) common.Status {
	if pod, ok := job.Pods[req.PodID]; ok {
		if pod.Endpoint != req.Endpoint {
			// Same pod id from a different worker. The older of the two
			// must exit.
			if req.StartTime < pod.StartTime {
				logrus.Warnf("Abandon stale worker %s for pod %s", req.Endpoint, req.PodID)
				return common.Terminate
			}
			pod.Endpoint = req.Endpoint
			pod.Status = common.PodDeploying
			pod.Version = job.CurrentVersion
			pod.StartTime = req.StartTime
			pod.UpdateTime = job.UpdateTime
			pod.HeartbeatTime = common.Micros(m.clock)
			logrus.Infof("Pod %s taken over by worker %s", req.PodID, req.Endpoint)
			return common.Ok
		}
		pod.HeartbeatTime = common.Micros(m.clock)
		pod.Status = req.Status
		if req.Status >= common.PodServing {
			job.DeployingPods.Delete(req.PodID)
		}
		return common.Ok
	}
	if req.Status != common.PodPending {
		// A pod that predates this master re-registers with its live
		// state. It does not occupy a deploy slot.
		logrus.Infof("Re-registering pod %s of job %s from %s", req.PodID, job.ID, req.Endpoint)
		pod := m.createPod(job, req.PodID, req.Endpoint)
		pod.Status = req.Status
		pod.StartTime = req.StartTime
		return common.Ok
	}
	if int32(job.DeployingPods.Len()) >= job.Desc.Deploy.Step {
		logrus.Warnf("Fetch reject for job %s: deploying %d >= step %d",
			job.ID, job.DeployingPods.Len(), job.Desc.Deploy.Step)
		return common.Terminate
	}
	if int32(len(job.Pods)) >= job.Desc.Deploy.Replica {
		logrus.Warnf("Fetch deny for job %s: pods %d >= replica %d",
			job.ID, len(job.Pods), job.Desc.Deploy.Replica)
		return common.Deny
	}
	pod := m.createPod(job, req.PodID, req.Endpoint)
	job.DeployingPods.Insert(pod.PodID)
	return common.Ok
}

// updatePod serves fetches while the job is Updating. Pods still on the
// old version are told the computed action; pods that caught up get their
// version stamped.
func (m *Manager) updatePod(job *Job, req common.FetchRequest) common.Status {
	pod, ok := job.Pods[req.PodID]
	if !ok {
		if req.Status == common.PodPending {
			if int32(job.DeployingPods.Len()) >= job.Desc.Deploy.Step {
				return common.Deny
			}
			if int32(len(job.Pods)) >= job.Desc.Deploy.Replica {
				return common.Deny
			}
			p := m.createPod(job, req.PodID, req.Endpoint)
			job.DeployingPods.Insert(p.PodID)
			return common.Ok
		}
		logrus.Infof("Re-registering pod %s of job %s from %s", req.PodID, job.ID, req.Endpoint)
		p := m.createPod(job, req.PodID, req.Endpoint)
		p.Status = req.Status
		p.StartTime = req.StartTime
		return common.Ok
	}
	pod.HeartbeatTime = common.Micros(m.clock)
	if req.Status >= common.PodServing {
		job.DeployingPods.Delete(req.PodID)
	}
	if job.UpdateTime > req.UpdateTime {
		var st common.Status
		switch job.Action {
		case common.ActionNull:
			st = common.Ok
		case common.ActionRebuild:
			st = common.Rebuild
		case common.ActionReload:
			st = common.Reload
		default:
			st = common.Error
		}
		logrus.Infof("Pod %s behind job %s update, action %s", req.PodID, job.ID, st)
		return st
	}
	pod.Version = job.CurrentVersion
	pod.UpdateTime = job.UpdateTime
	return common.Ok
}

// destroyPod serves fetches once the job is Destroying or Finished: every
// worker is told to exit; the aging checker observes the drain.
func (m *Manager) destroyPod(job *Job, req common.FetchRequest) common.Status {
	return common.Terminate
}
