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

// resman is the resource-manager service: it tracks agents and binds
// container replicas to them. The appmaster talks to it to tear down the
// container group of a finished job.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/cyjseagull/galaxy/sched"
)

var (
	addr          = flag.String("addr", ":8090", "Address to serve the resman API on")
	metricsPort   = flag.Int("metrics-port", 9091, "Port to serve prometheus metrics on")
	schedInterval = flag.Duration("sched-interval", time.Second, "Period of the placement loop")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&logrus.JSONFormatter{})

	scheduler := sched.NewScheduler(*schedInterval, clock.RealClock{})
	scheduler.Start()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		logrus.WithError(http.ListenAndServe(fmt.Sprintf(":%d", *metricsPort), metricsMux)).
			Fatal("Metrics ListenAndServe returned.")
	}()

	server := http.Server{
		Handler: NewResmanHandler(scheduler),
		Addr:    *addr,
	}
	logrus.Info("Start resman")
	logrus.WithError(server.ListenAndServe()).Fatal("ListenAndServe returned.")
}
