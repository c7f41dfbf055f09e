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

package nexus

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/cyjseagull/galaxy/appmaster/common"
)

// Store persists job records under <nexus_root><jobs_store_path>/<jobId>.
// Writes are best effort: the manager logs failures and relies on the next
// successful write to reconverge.
type Store struct {
	kv     KV
	prefix string
}

// NewStore wraps a KV backend with the job-record codec.
func NewStore(kv KV, prefix string) *Store {
	return &Store{kv: kv, prefix: prefix}
}

// JobKey returns the store key of one job.
func (s *Store) JobKey(jobID string) string {
	return s.prefix + "/" + jobID
}

// SaveJob serializes and writes one job record.
func (s *Store) SaveJob(info common.JobInfo) error {
	buf, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("cannot marshal job %s: %v", info.JobID, err)
	}
	return s.kv.Put(s.JobKey(info.JobID), buf)
}

// DeleteJob removes one job record. A missing record is not an error: the
// write that would have created it may have been lost.
func (s *Store) DeleteJob(jobID string) error {
	if err := s.kv.Delete(s.JobKey(jobID)); err != nil && err != ErrNotFound {
		return err
	}
	return nil
}

// GetJob reads one job record.
func (s *Store) GetJob(jobID string) (common.JobInfo, error) {
	var info common.JobInfo
	buf, err := s.kv.Get(s.JobKey(jobID))
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(buf, &info); err != nil {
		return info, fmt.Errorf("cannot unmarshal job %s: %v", jobID, err)
	}
	return info, nil
}

// LoadAll enumerates every job record under the prefix. Records that fail
// to decode are skipped and aggregated into the returned error so one bad
// record cannot block recovery of the rest.
func (s *Store) LoadAll() ([]common.JobInfo, error) {
	pairs, err := s.kv.List(s.prefix + "/")
	if err != nil {
		return nil, err
	}
	var infos []common.JobInfo
	var finalError error
	for key, buf := range pairs {
		var info common.JobInfo
		if err := json.Unmarshal(buf, &info); err != nil {
			logrus.WithError(err).Errorf("Skipping undecodable job record %s", key)
			finalError = multierror.Append(finalError, fmt.Errorf("record %s: %v", key, err))
			continue
		}
		infos = append(infos, info)
	}
	return infos, finalError
}
