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
	"fmt"
	"io/ioutil"
	"time"

	"sigs.k8s.io/yaml"
)

// Duration is a time.Duration that parses from either an integer number
// of nanoseconds or a duration string.
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements the JSON Unmarshaler interface.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &d.Duration); err == nil {
		// b was an integer number of nanoseconds.
		return nil
	}
	// b was not an integer. Assume that it is a duration string.
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	pd, err := time.ParseDuration(str)
	if err != nil {
		return err
	}
	d.Duration = pd
	return nil
}

// MarshalJSON implements the JSON Marshaler interface.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// Config carries every knob the master recognizes. A zero value is not
// usable; construct with defaults via NewConfig or load from a file.
type Config struct {
	// JobCheckInterval is the period of the per-job aging checker.
	JobCheckInterval Duration `json:"job_check_interval,omitempty"`
	// PodCheckInterval is the period of the per-pod liveness checker.
	PodCheckInterval Duration `json:"pod_check_interval,omitempty"`
	// PodDeadTime is how long a pod may miss heartbeats before eviction.
	PodDeadTime Duration `json:"pod_dead_time,omitempty"`

	// NexusAddr is the durable store endpoint (redis backend only).
	NexusAddr string `json:"nexus_addr,omitempty"`
	// NexusRoot and JobsStorePath form the key prefix for job records.
	NexusRoot     string `json:"nexus_root,omitempty"`
	JobsStorePath string `json:"jobs_store_path,omitempty"`

	// ResmanEndpoint is where remove-container-group requests go.
	ResmanEndpoint string `json:"resman_endpoint,omitempty"`

	// SchedInterval is the period of the scheduler placement loop.
	SchedInterval Duration `json:"sched_interval,omitempty"`
}

// NewConfig returns a Config with the default intervals filled in.
func NewConfig() Config {
	return Config{
		JobCheckInterval: Duration{5 * time.Second},
		PodCheckInterval: Duration{5 * time.Second},
		PodDeadTime:      Duration{30 * time.Second},
		NexusRoot:        "/galaxy",
		JobsStorePath:    "/jobs",
		SchedInterval:    Duration{time.Second},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(buf, &c); err != nil {
		return c, fmt.Errorf("cannot parse config %s: %v", path, err)
	}
	return c, c.Validate()
}

// Validate rejects configurations the checkers cannot run with.
func (c Config) Validate() error {
	if c.JobCheckInterval.Duration <= 0 {
		return fmt.Errorf("job_check_interval must be positive, got %v", c.JobCheckInterval)
	}
	if c.PodCheckInterval.Duration <= 0 {
		return fmt.Errorf("pod_check_interval must be positive, got %v", c.PodCheckInterval)
	}
	if c.PodDeadTime.Duration <= 0 {
		return fmt.Errorf("pod_dead_time must be positive, got %v", c.PodDeadTime)
	}
	return nil
}

// JobsPrefix is the durable-store key prefix under which all job records
// live.
func (c Config) JobsPrefix() string {
	return c.NexusRoot + c.JobsStorePath
}
