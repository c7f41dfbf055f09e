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
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/cyjseagull/galaxy/sched"
)

// NewResmanHandler constructs the resman API mux.
func NewResmanHandler(s *sched.Scheduler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/agent/add", handleAddAgent(s))
	mux.Handle("/agent/remove", handleRemoveAgent(s))
	mux.Handle("/submit", handleSubmit(s))
	mux.Handle("/scaleup", handleScale(s.ScaleUp))
	mux.Handle("/scaledown", handleScale(s.ScaleDown))
	mux.Handle("/kill", handleKill(s))
	mux.Handle("/removecontainergroup", handleKill(s))
	mux.Handle("/status", handleChangeStatus(s))
	mux.Handle("/assignment", handleShowAssignment(s))
	mux.Handle("/containergroup", handleShowContainerGroup(s))
	return mux
}

func writeJSON(res http.ResponseWriter, v interface{}) {
	res.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(res).Encode(v); err != nil {
		logrus.WithError(err).Error("Fail to encode response")
	}
}

//  handleAddAgent: Handler for /agent/add
//  Method: POST
//  Body: {endpoint, total Resource, labels []string} JSON
func handleAddAgent(s *sched.Scheduler) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(res, "/agent/add only accepts POST", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Endpoint string         `json:"endpoint"`
			Total    sched.Resource `json:"total"`
			Labels   []string       `json:"labels"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(res, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Endpoint == "" {
			http.Error(res, "endpoint must be set in the request.", http.StatusBadRequest)
			return
		}
		s.AddAgent(body.Endpoint, body.Total, body.Labels)
	}
}

//  handleRemoveAgent: Handler for /agent/remove
//  Method: POST
//  URLParams:
//      Required: endpoint=[string]
func handleRemoveAgent(s *sched.Scheduler) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(res, "/agent/remove only accepts POST", http.StatusMethodNotAllowed)
			return
		}
		endpoint := req.URL.Query().Get("endpoint")
		if endpoint == "" {
			http.Error(res, "endpoint must be set in the request.", http.StatusBadRequest)
			return
		}
		s.RemoveAgent(endpoint)
	}
}

//  handleSubmit: Handler for /submit
//  Method: POST
//  Body: {require Requirement, replica int} JSON
func handleSubmit(s *sched.Scheduler) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(res, "/submit only accepts POST", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Require sched.Requirement `json:"require"`
			Replica int               `json:"replica"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(res, err.Error(), http.StatusBadRequest)
			return
		}
		groupID := s.Submit(body.Require, body.Replica)
		writeJSON(res, map[string]string{"group_id": groupID})
	}
}

//  handleScale: Handler for /scaleup and /scaledown
//  Method: POST
//  URLParams:
//      Required: group=[string]
//      Required: n=[int]
func handleScale(scale func(string, int) error) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(res, "scaling only accepts POST", http.StatusMethodNotAllowed)
			return
		}
		group := req.URL.Query().Get("group")
		n, err := strconv.Atoi(req.URL.Query().Get("n"))
		if group == "" || err != nil || n <= 0 {
			http.Error(res, "group and a positive n must be set in the request.", http.StatusBadRequest)
			return
		}
		if err := scale(group, n); err != nil {
			http.Error(res, err.Error(), http.StatusNotFound)
			return
		}
	}
}

//  handleKill: Handler for /kill and /removecontainergroup
//  Method: POST
//  URLParams:
//      Required: id=[string] (or group=[string])
func handleKill(s *sched.Scheduler) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(res, "kill only accepts POST", http.StatusMethodNotAllowed)
			return
		}
		group := req.URL.Query().Get("id")
		if group == "" {
			group = req.URL.Query().Get("group")
		}
		if group == "" {
			http.Error(res, "id must be set in the request.", http.StatusBadRequest)
			return
		}
		if err := s.Kill(group); err != nil {
			// Removal is idempotent from the appmaster's point of view: a
			// group that is already gone is success.
			logrus.WithError(err).Infof("Kill of %s is a no-op", group)
		}
	}
}

//  handleChangeStatus: Handler for /status
//  Method: POST
//  URLParams:
//      Required: container=[string]
//      Required: status=[int] (sched.ContainerStatus value)
func handleChangeStatus(s *sched.Scheduler) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(res, "/status only accepts POST", http.StatusMethodNotAllowed)
			return
		}
		container := req.URL.Query().Get("container")
		status, err := strconv.Atoi(req.URL.Query().Get("status"))
		if container == "" || err != nil {
			http.Error(res, "container and status must be set in the request.", http.StatusBadRequest)
			return
		}
		if err := s.ChangeStatus(container, sched.ContainerStatus(status)); err != nil {
			http.Error(res, err.Error(), http.StatusNotFound)
			return
		}
	}
}

//  handleShowAssignment: Handler for /assignment
//  Method: GET
//  URLParams:
//      Required: endpoint=[string]
func handleShowAssignment(s *sched.Scheduler) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(res, "/assignment only accepts GET", http.StatusMethodNotAllowed)
			return
		}
		endpoint := req.URL.Query().Get("endpoint")
		if endpoint == "" {
			http.Error(res, "endpoint must be set in the request.", http.StatusBadRequest)
			return
		}
		containers, err := s.ShowAssignment(endpoint)
		if err != nil {
			http.Error(res, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(res, containers)
	}
}

//  handleShowContainerGroup: Handler for /containergroup
//  Method: GET
//  URLParams:
//      Required: group=[string]
func handleShowContainerGroup(s *sched.Scheduler) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(res, "/containergroup only accepts GET", http.StatusMethodNotAllowed)
			return
		}
		group := req.URL.Query().Get("group")
		if group == "" {
			http.Error(res, "group must be set in the request.", http.StatusBadRequest)
			return
		}
		containers, err := s.ShowContainerGroup(group)
		if err != nil {
			http.Error(res, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(res, containers)
	}
}
