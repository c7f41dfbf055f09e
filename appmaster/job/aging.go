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

// Timers are one-shot and re-armed. They carry identifiers only and
// re-look-up the record under the mutex when they fire, so a timer that
// outlives its job or pod is a harmless no-op.

func (m *Manager) scheduleJobCheck(jobID string) {
	go func() {
		select {
		case <-m.clock.After(m.conf.JobCheckInterval.Duration):
			m.checkJobStatus(jobID)
		case <-m.stop:
		}
	}()
}

func (m *Manager) schedulePodCheck(jobID, podID string) {
	go func() {
		select {
		case <-m.clock.After(m.conf.PodCheckInterval.Duration):
			m.checkPodAlive(jobID, podID)
		case <-m.stop:
		}
	}()
}

// checkJobStatus is the per-job aging checker. It re-arms itself for
// every status except Finished, then runs the per-status check.
func (m *Manager) checkJobStatus(jobID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return
	}
	if job.Status != common.JobFinished {
		m.scheduleJobCheck(jobID)
	}
	switch job.Status {
	case common.JobPending, common.JobRunning:
		// Nothing ages in these states.
	case common.JobUpdating:
		m.checkUpdating(job)
	case common.JobDestroying:
		m.checkDestroying(job)
	case common.JobFinished:
		m.checkClear(job)
	}
}

// checkUpdating posts UpdateFinish once every pod has caught up with the
// job's update time.
func (m *Manager) checkUpdating(job *Job) {
	for _, pod := range job.Pods {
		if pod.UpdateTime < job.UpdateTime {
			logrus.Infof("Pod %s of job %s still updating", pod.PodID, job.ID)
			return
		}
	}
	m.post(job, common.EventUpdateFinish, nil)
}

// checkDestroying posts RemoveFinish once the last pod is gone.
func (m *Manager) checkDestroying(job *Job) {
	if len(job.Pods) != 0 {
		return
	}
	m.post(job, common.EventRemoveFinish, nil)
}

// checkClear releases a Finished job: out of the index, out of the store.
// The checker does not re-arm for Finished jobs, so this runs once.
func (m *Manager) checkClear(job *Job) {
	delete(m.jobs, job.ID)
	if err := m.store.DeleteJob(job.ID); err != nil {
		logrus.WithError(err).Warnf("Fail to delete job %s from nexus", job.ID)
	}
	logrus.WithField("job", job.ID).Info("Job cleared")
}

// checkPodAlive evicts a pod whose heartbeat is older than the dead time,
// otherwise re-arms. Eviction only removes the pod record; the deploying
// set is corrected lazily by the next fetch.
func (m *Manager) checkPodAlive(jobID, podID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return
	}
	pod, ok := job.Pods[podID]
	if !ok {
		return
	}
	now := common.Micros(m.clock)
	if now-pod.HeartbeatTime > m.conf.PodDeadTime.Duration.Microseconds() {
		delete(job.Pods, podID)
		logrus.Infof("Pod %s of job %s heartbeat[%d] now[%d] dead, removed",
			podID, jobID, pod.HeartbeatTime, now)
		return
	}
	m.schedulePodCheck(jobID, podID)
}
