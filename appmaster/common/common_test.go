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

package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
)

func sampleJobInfo() JobInfo {
	desc := JobDescription{
		Name:    "webserver",
		Version: "2.0.0",
		Deploy:  Deploy{Replica: 3, Step: 1},
		Pod: PodDescription{
			Tasks: []TaskDescription{
				{
					ID:         "task-0",
					StartCmd:   "./bin/start.sh",
					ExePackage: Package{SourcePath: "ftp://pkg/web", DestPath: "/home/web", Version: "1.2.0"},
					DataPackages: []Package{
						{SourcePath: "ftp://pkg/dict", DestPath: "/home/web/dict", Version: "20"},
					},
				},
			},
		},
	}
	old := desc
	old.Version = "1.0.0"
	return JobInfo{
		JobID:      "job-1",
		Status:     JobUpdating,
		Desc:       desc,
		Descs:      []JobDescription{old, desc},
		Version:    "2.0.0",
		User:       User{User: "galaxy"},
		Action:     ActionReload,
		CreateTime: 1000000,
		UpdateTime: 2000000,
		Pods: []PodInfo{
			{
				PodID:         "pod-0",
				JobID:         "job-1",
				Endpoint:      "agent-0:1234",
				Status:        PodRunning,
				Version:       "1.0.0",
				StartTime:     1100000,
				UpdateTime:    1000000,
				HeartbeatTime: 1900000,
			},
		},
	}
}

func TestJobInfoRoundTrip(t *testing.T) {
	in := sampleJobInfo()
	buf, err := json.Marshal(in)
	require.NoError(t, err)
	var out JobInfo
	require.NoError(t, json.Unmarshal(buf, &out))
	if diff := deep.Equal(in, out); diff != nil {
		t.Errorf("round trip differs: %v", diff)
	}
}

func TestStatusNames(t *testing.T) {
	testCases := []struct {
		in   interface{ String() string }
		want string
	}{
		{Ok, "Ok"},
		{StatusConflict, "StatusConflict"},
		{JobDestroying, "Destroying"},
		{PodServing, "Serving"},
		{ActionRebuild, "Rebuild"},
		{EventUpdateFinish, "UpdateFinish"},
		{Status(99), "Unknown"},
	}
	for _, tc := range testCases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("String() = %q, expect %q", got, tc.want)
		}
	}
}

func TestPodStatusOrdering(t *testing.T) {
	// The deploy-step gate relies on everything from Serving on counting
	// as deployed.
	deployed := []PodStatus{PodServing, PodRunning, PodStopping, PodFinished, PodFailed, PodTerminated}
	for _, s := range deployed {
		if s < PodServing {
			t.Errorf("%s should order at or after Serving", s)
		}
	}
	deploying := []PodStatus{PodPending, PodDeploying, PodStarting, PodReady}
	for _, s := range deploying {
		if s >= PodServing {
			t.Errorf("%s should order before Serving", s)
		}
	}
}

func TestDurationUnmarshal(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  time.Duration
		err   bool
	}{
		{name: "duration string", input: `"15s"`, want: 15 * time.Second},
		{name: "nanoseconds", input: `5000000000`, want: 5 * time.Second},
		{name: "garbage", input: `"noise"`, err: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tc.input), &d)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, d.Duration)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	conf := NewConfig()
	require.NoError(t, conf.Validate())
	require.Equal(t, "/galaxy/jobs", conf.JobsPrefix())

	conf.PodDeadTime = Duration{}
	require.Error(t, conf.Validate())
}
