/*
Copyright 2017 The Kubernetes Authors.

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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cyjseagull/galaxy/appmaster/common"
	"github.com/cyjseagull/galaxy/appmaster/job"
	"github.com/cyjseagull/galaxy/appmaster/metrics"
)

// NewAppMasterHandler constructs the master API mux. The handlers are a
// thin shim: message shapes are the contract, all decisions live in the
// manager.
func NewAppMasterHandler(m *job.Manager) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/submit", handleSubmit(m))
	mux.Handle("/update", handleUpdate(m))
	mux.Handle("/terminate", handleTerminate(m))
	mux.Handle("/fetch", handleFetch(m))
	mux.Handle("/jobs", handleListJobs(m))
	mux.Handle("/job", handleGetJob(m))
	return mux
}

// statusToHTTP translates a result code into an http code.
func statusToHTTP(st common.Status) int {
	switch st {
	case common.Ok:
		return http.StatusOK
	case common.JobNotFound:
		return http.StatusNotFound
	case common.StatusConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(res http.ResponseWriter, v interface{}) {
	res.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(res).Encode(v); err != nil {
		logrus.WithError(err).Error("Fail to encode response")
	}
}

//  handleSubmit: Handler for /submit
//  Method: POST
//  Body: JobDescription JSON
func handleSubmit(m *job.Manager) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(res, "/submit only accepts POST", http.StatusMethodNotAllowed)
			return
		}
		var desc common.JobDescription
		if err := json.NewDecoder(req.Body).Decode(&desc); err != nil {
			logrus.WithError(err).Warning("Unable to decode job description")
			http.Error(res, err.Error(), http.StatusBadRequest)
			return
		}
		jobID := "job-" + uuid.New().String()
		st := m.Add(jobID, desc)
		writeJSON(res, map[string]interface{}{"job_id": jobID, "status": st.String()})
	}
}

//  handleUpdate: Handler for /update
//  Method: POST
//  URLParams:
//      Required: jobid=[string]
//  Body: JobDescription JSON
func handleUpdate(m *job.Manager) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(res, "/update only accepts POST", http.StatusMethodNotAllowed)
			return
		}
		jobID := req.URL.Query().Get("jobid")
		if jobID == "" {
			http.Error(res, "jobid must be set in the request.", http.StatusBadRequest)
			return
		}
		var desc common.JobDescription
		if err := json.NewDecoder(req.Body).Decode(&desc); err != nil {
			http.Error(res, err.Error(), http.StatusBadRequest)
			return
		}
		st := m.Update(jobID, desc)
		if st != common.Ok {
			http.Error(res, st.String(), statusToHTTP(st))
			return
		}
		writeJSON(res, map[string]string{"status": st.String()})
	}
}

//  handleTerminate: Handler for /terminate
//  Method: POST
//  URLParams:
//      Required: jobid=[string]
//      Required: user=[string]
//      Optional: hostname=[string]
func handleTerminate(m *job.Manager) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(res, "/terminate only accepts POST", http.StatusMethodNotAllowed)
			return
		}
		jobID := req.URL.Query().Get("jobid")
		user := req.URL.Query().Get("user")
		if jobID == "" || user == "" {
			msg := fmt.Sprintf("jobid: %v, user: %v, both must be set in the request.", jobID, user)
			http.Error(res, msg, http.StatusBadRequest)
			return
		}
		st := m.Terminate(jobID, common.User{User: user}, req.URL.Query().Get("hostname"))
		if st != common.Ok {
			http.Error(res, st.String(), statusToHTTP(st))
			return
		}
		writeJSON(res, map[string]string{"status": st.String()})
	}
}

//  handleFetch: Handler for /fetch
//  Method: POST
//  Body: FetchRequest JSON
func handleFetch(m *job.Manager) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(res, "/fetch only accepts POST", http.StatusMethodNotAllowed)
			return
		}
		var fetch common.FetchRequest
		if err := json.NewDecoder(req.Body).Decode(&fetch); err != nil {
			http.Error(res, err.Error(), http.StatusBadRequest)
			return
		}
		resp := m.HandleFetch(fetch)
		metrics.RecordFetch(resp.Status)
		writeJSON(res, resp)
	}
}

//  handleListJobs: Handler for /jobs
//  Method: GET
func handleListJobs(m *job.Manager) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(res, "/jobs only accepts GET", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(res, m.GetJobsOverview())
	}
}

//  handleGetJob: Handler for /job
//  Method: GET
//  URLParams:
//      Required: jobid=[string]
func handleGetJob(m *job.Manager) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(res, "/job only accepts GET", http.StatusMethodNotAllowed)
			return
		}
		jobID := req.URL.Query().Get("jobid")
		if jobID == "" {
			http.Error(res, "jobid must be set in the request.", http.StatusBadRequest)
			return
		}
		info, st := m.GetJobInfo(jobID)
		if st != common.Ok {
			http.Error(res, st.String(), statusToHTTP(st))
			return
		}
		writeJSON(res, info)
	}
}
