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

// Package staging manages the transient local directory tree that holds
// downloaded asset bytes between download and re-upload.
package staging

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Area is a staging directory tree. Paths are derived deterministically
// from source URLs: the URL's parent path segment becomes the
// subdirectory, the last segment the filename. When two distinct URLs
// collide on the same relative path, the later one gets a hash of its full
// URL prefixed to the filename.
type Area struct {
	fs   billy.Filesystem
	lock *flock.Flock

	mu      sync.Mutex
	claimed map[string]string // rel path -> owning source URL
}

// New returns an Area over an existing filesystem. The filesystem is
// assumed empty; use OpenDir for the real on-disk staging root.
func New(fs billy.Filesystem) *Area {
	return &Area{fs: fs, claimed: make(map[string]string)}
}

// OpenDir wipes and recreates the staging root on the local disk and
// returns an Area rooted in a fresh per-run subdirectory. A lock file next
// to the root guards against two runs sharing one staging tree; the second
// run fails fast.
func OpenDir(root string) (*Area, error) {
	if err := os.MkdirAll(filepath.Dir(root), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging parent: %w", err)
	}
	lock := flock.New(root + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire staging lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("staging root %s is in use by another run", root)
	}
	if err := os.RemoveAll(root); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to wipe staging root: %w", err)
	}
	runDir := filepath.Join(root, "run-"+uuid.NewString())
	if err := os.MkdirAll(runDir, 0o700); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	a := New(osfs.New(runDir))
	a.lock = lock
	return a, nil
}

// Close releases the staging lock, if any.
func (a *Area) Close() error {
	if a.lock != nil {
		return a.lock.Unlock()
	}
	return nil
}

// SplitURL derives the staging subdirectory and filename for a source URL.
// URLs with a single path segment land in the "assets" subdirectory.
func SplitURL(rawURL string) (dir, name string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid asset URL %q: %w", rawURL, err)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	name = segs[len(segs)-1]
	if name == "" {
		return "", "", fmt.Errorf("asset URL %q has no filename", rawURL)
	}
	if len(segs) >= 2 {
		dir = segs[len(segs)-2]
	} else {
		dir = "assets"
	}
	return dir, name, nil
}

// Create claims a staging path for the source URL and opens it for
// writing. The returned relative path is stable for the lifetime of the
// Area: the same URL always maps to the same path, and distinct URLs never
// share one.
func (a *Area) Create(sourceURL string) (billy.File, string, error) {
	dir, name, err := SplitURL(sourceURL)
	if err != nil {
		return nil, "", err
	}

	a.mu.Lock()
	rel := path.Join(dir, name)
	if owner, ok := a.claimed[rel]; ok && owner != sourceURL {
		h := fnv.New32a()
		h.Write([]byte(sourceURL))
		rel = path.Join(dir, fmt.Sprintf("%08x-%s", h.Sum32(), name))
	}
	a.claimed[rel] = sourceURL
	a.mu.Unlock()

	if err := a.fs.MkdirAll(path.Dir(rel), 0o700); err != nil {
		return nil, "", fmt.Errorf("failed to create staging dir: %w", err)
	}
	f, err := a.fs.Create(rel)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create staging file: %w", err)
	}
	return f, rel, nil
}

// Open opens a previously staged file for reading.
func (a *Area) Open(rel string) (billy.File, error) {
	return a.fs.Open(rel)
}

// Discard removes a staged file and its directory. Called unconditionally
// after an asset settles; missing files and non-empty directories are
// tolerated.
func (a *Area) Discard(rel string) {
	_ = a.fs.Remove(rel)
	if dir := path.Dir(rel); dir != "." && dir != "/" {
		_ = a.fs.Remove(dir)
	}
}
