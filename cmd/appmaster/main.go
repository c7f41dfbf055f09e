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

// appmaster is the master plane of the cluster: it owns job lifecycle,
// serves worker fetches and keeps job records in the durable store.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/cyjseagull/galaxy/appmaster/common"
	"github.com/cyjseagull/galaxy/appmaster/job"
	"github.com/cyjseagull/galaxy/appmaster/metrics"
	"github.com/cyjseagull/galaxy/appmaster/nexus"
	"github.com/cyjseagull/galaxy/resman"
)

var (
	configPath     = flag.String("config", "", "Path to the optional YAML config file")
	addr           = flag.String("addr", ":8080", "Address to serve the master API on")
	metricsPort    = flag.Int("metrics-port", 9090, "Port to serve prometheus metrics on")
	nexusAddr      = flag.String("nexus-addr", "", "Redis URL of the durable store; overrides the config file")
	storeDir       = flag.String("store-dir", "", "Directory for the on-disk durable store; used when no nexus address is set")
	resmanEndpoint = flag.String("resman-endpoint", "", "Endpoint of the resource manager; overrides the config file")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&logrus.JSONFormatter{})

	conf, err := common.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	if *nexusAddr != "" {
		conf.NexusAddr = *nexusAddr
	}
	if *resmanEndpoint != "" {
		conf.ResmanEndpoint = *resmanEndpoint
	}

	var kv nexus.KV
	switch {
	case conf.NexusAddr != "":
		kv = nexus.NewRedis(conf.NexusAddr)
	case *storeDir != "":
		kv = nexus.NewDisk(*storeDir, 1)
	default:
		logrus.Warn("No durable store configured, job records will not survive a restart")
		kv = nexus.NewMemory()
	}
	store := nexus.NewStore(kv, conf.JobsPrefix())

	rm := resman.NewHTTPClient(conf.ResmanEndpoint)
	manager := job.NewManager(conf, store, rm, clock.RealClock{})
	if err := manager.Recover(); err != nil {
		logrus.WithError(err).Error("Some job records failed to reload")
	}

	go func() {
		logTick := time.NewTicker(time.Minute).C
		for range logTick {
			overview := manager.GetJobsOverview()
			metrics.SyncOverview(overview)
			logrus.Infof("Managing %d jobs", len(overview))
		}
	}()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		logrus.WithError(http.ListenAndServe(fmt.Sprintf(":%d", *metricsPort), metricsMux)).
			Fatal("Metrics ListenAndServe returned.")
	}()

	server := http.Server{
		Handler: NewAppMasterHandler(manager),
		Addr:    *addr,
	}
	logrus.Info("Start appmaster")
	logrus.WithError(server.ListenAndServe()).Fatal("ListenAndServe returned.")
}
