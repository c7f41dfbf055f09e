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

// Package resman is the appmaster-side client of the resource-manager
// sibling service. The only call the job lifecycle needs is the
// fire-and-forget container-group removal issued by ClearJob.
package resman

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cyjseagull/galaxy/appmaster/common"
)

// requestTimeout bounds every outbound call.
const requestTimeout = 5 * time.Second

// Client is what the job manager depends on. Implementations must not
// block the caller: removal is requested asynchronously and failures are
// logged, never propagated.
type Client interface {
	RemoveContainerGroup(groupID string, user common.User)
}

// HTTPClient talks to the resource manager over its HTTP surface. The
// endpoint is swappable at runtime under its own lock; the job-manager
// mutex is always taken before this one, never after.
type HTTPClient struct {
	lock     sync.Mutex
	endpoint string
	http     *http.Client
}

// NewHTTPClient creates a client for the given resman endpoint, e.g.
// "http://resman:8090".
func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// SetEndpoint swaps the resman endpoint, e.g. after a leader change.
func (c *HTTPClient) SetEndpoint(endpoint string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.endpoint = strings.TrimSuffix(endpoint, "/")
}

// RemoveContainerGroup asks the resource manager to tear down the
// container group backing a job. The request runs on its own goroutine
// and is sent once; the outcome is logged and dropped, and a failed
// removal is not sent again.
func (c *HTTPClient) RemoveContainerGroup(groupID string, user common.User) {
	c.lock.Lock()
	endpoint := c.endpoint
	c.lock.Unlock()
	if endpoint == "" {
		logrus.Warnf("No resman endpoint configured, dropping removal of container group %s", groupID)
		return
	}
	go func() {
		q := url.Values{}
		q.Set("id", groupID)
		q.Set("user", user.User)
		target := fmt.Sprintf("%s/removecontainergroup?%s", endpoint, q.Encode())
		resp, err := c.http.Post(target, "application/json", nil)
		if err != nil {
			logrus.WithError(err).Warnf("Fail to remove container group %s", groupID)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			logrus.Warnf("Fail to remove container group %s: status %d", groupID, resp.StatusCode)
			return
		}
		logrus.WithField("group", groupID).Info("Requested container group removal")
	}()
}
