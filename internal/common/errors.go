// Copyright 2025 Storymig Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Fatal error classes. Any error wrapping one of these aborts the whole run;
// everything else is absorbed at the unit (asset/story) boundary.
var (
	ErrSetup        = errors.New("setup failed")
	ErrFetch        = errors.New("fetch failed")
	ErrFolderCreate = errors.New("folder create failed")
)

// StatusError is a non-2xx response from the management or upload endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// IsRateLimited returns true if the error is an HTTP 429 response.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// IsTimeout returns true if the error is a transport timeout or an expired
// context deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsRetryableUpload reports whether an upload-destination request may be
// retried. Only rate limiting and timeouts qualify; every other failure is
// final for the asset.
func IsRetryableUpload(err error) bool {
	return IsRateLimited(err) || IsTimeout(err)
}
