/*
Copyright 2018 The Kubernetes Authors.

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

// Package metrics exposes prometheus collectors for the master surface.
// The transport layer records fetch outcomes as they happen; the gauges
// are resynced periodically from the manager's overview.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cyjseagull/galaxy/appmaster/common"
)

var (
	jobsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "galaxy_jobs",
		Help: "Number of jobs by lifecycle status.",
	}, []string{"status"})

	podsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "galaxy_pods",
		Help: "Number of pods by derived bucket across all jobs.",
	}, []string{"bucket"})

	fetchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_fetch_total",
		Help: "Worker fetches by result code.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(jobsGauge)
	prometheus.MustRegister(podsGauge)
	prometheus.MustRegister(fetchCounter)
}

// RecordFetch counts one served fetch.
func RecordFetch(result common.Status) {
	fetchCounter.WithLabelValues(result.String()).Inc()
}

// SyncOverview resets the job and pod gauges from a fresh overview.
func SyncOverview(overview []common.JobOverview) {
	jobsGauge.Reset()
	podsGauge.Reset()
	var running, deploying, death, pending int32
	for _, o := range overview {
		jobsGauge.WithLabelValues(o.Status.String()).Inc()
		running += o.RunningNum
		deploying += o.DeployingNum
		death += o.DeathNum
		pending += o.PendingNum
	}
	podsGauge.WithLabelValues("running").Set(float64(running))
	podsGauge.WithLabelValues("deploying").Set(float64(deploying))
	podsGauge.WithLabelValues("death").Set(float64(death))
	podsGauge.WithLabelValues("pending").Set(float64(pending))
}
