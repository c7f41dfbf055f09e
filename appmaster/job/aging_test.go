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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyjseagull/galaxy/appmaster/common"
)

func TestCheckUpdatingWaitsForLaggards(t *testing.T) {
	m, _, _, clk := newTestManager(t)
	m.Add("j1", testDesc(2, 2))
	fetch(m, clk, "j1", "p1", common.PodPending, 0)
	fetch(m, clk, "j1", "p2", common.PodPending, 0)

	desc := testDesc(2, 2)
	desc.Version = "2.0.0"
	clk.Step(time.Second)
	require.Equal(t, common.Ok, m.Update("j1", desc))
	after, _ := m.GetJobInfo("j1")

	// One pod caught up, one did not: the update is not finished.
	fetch(m, clk, "j1", "p1", common.PodServing, after.UpdateTime)
	m.checkJobStatus("j1")
	assert.Equal(t, common.JobUpdating, jobStatus(t, m, "j1"))

	fetch(m, clk, "j1", "p2", common.PodServing, after.UpdateTime)
	m.checkJobStatus("j1")
	assert.Equal(t, common.JobRunning, jobStatus(t, m, "j1"))
}

func TestCheckDestroyingNeedsEmptyPods(t *testing.T) {
	m, _, rm, clk := newTestManager(t)
	m.Add("j1", testDesc(1, 1))
	fetch(m, clk, "j1", "p1", common.PodPending, 0)
	require.Equal(t, common.Ok, m.Terminate("j1", common.User{User: "ops"}, "h"))

	m.checkJobStatus("j1")
	assert.Equal(t, common.JobDestroying, jobStatus(t, m, "j1"))
	assert.Empty(t, rm.removals())

	delete(m.jobs["j1"].Pods, "p1")
	m.checkJobStatus("j1")
	assert.Equal(t, common.JobFinished, jobStatus(t, m, "j1"))
	assert.Equal(t, []string{"j1"}, rm.removals())
}

func TestPodLivenessEviction(t *testing.T) {
	m, _, _, clk := newTestManager(t)
	m.Add("j1", testDesc(1, 1))
	fetch(m, clk, "j1", "p1", common.PodPending, 0)

	// A fresh heartbeat keeps the pod alive.
	m.checkPodAlive("j1", "p1")
	assert.NotNil(t, m.jobs["j1"].Pods["p1"])

	// Past the dead time the pod is removed; the deploying set is left
	// to be corrected by the next fetch.
	m.jobs["j1"].Pods["p1"].HeartbeatTime -= (40 * time.Second).Microseconds()
	m.checkPodAlive("j1", "p1")
	assert.Nil(t, m.jobs["j1"].Pods["p1"])
	assert.Equal(t, 1, m.jobs["j1"].DeployingPods.Len())
}

func TestTimersAreDefensive(t *testing.T) {
	m, _, _, clk := newTestManager(t)

	// Checkers for records that no longer exist are no-ops.
	m.checkJobStatus("ghost")
	m.checkPodAlive("ghost", "p1")

	m.Add("j1", testDesc(1, 1))
	fetch(m, clk, "j1", "p1", common.PodPending, 0)
	m.checkPodAlive("j1", "ghost")
	assert.NotNil(t, m.jobs["j1"].Pods["p1"])
}
