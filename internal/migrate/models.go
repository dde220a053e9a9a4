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

// Package migrate implements the asset-and-folder migration pipeline:
// folder ordering and replication, concurrent asset transfer, story URL
// rewriting, and story reconciliation.
package migrate

import "encoding/json"

// AssetFolder is a node of the source space's folder tree.
// ParentID 0 means the folder sits at the root.
type AssetFolder struct {
	ID       int64  `json:"id"`
	ParentID int64  `json:"parent_id"`
	Name     string `json:"name"`
	UUID     string `json:"uuid,omitempty"`
}

// IDMap maps source folder ids to target folder ids. It is seeded with
// {0: 0} so root-level folders remap to the target root, and is total over
// the replicated folder set before any asset transfer reads it.
type IDMap map[int64]int64

// Asset is one binary file in the source space. Filename is the full
// source URL.
type Asset struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	FolderID int64  `json:"asset_folder_id"`
}

// Upload is a signed upload destination handed out by the target space:
// a form POST target plus the fields it requires, and the CDN URL the
// asset will be served from once finalized.
type Upload struct {
	ID        int64             `json:"id"`
	PostURL   string            `json:"post_url"`
	Fields    map[string]string `json:"fields"`
	PrettyURL string            `json:"pretty_url"`
}

// TransferOutcome is the settled result of one asset transfer. NewURL is
// empty when the transfer failed; Attempts counts upload-destination
// requests, including the first.
type TransferOutcome struct {
	Asset    Asset
	NewURL   string
	Attempts int
	Err      error
}

// URLMap maps scheme-stripped old asset URLs to their new URLs. An empty
// value is the failure sentinel: occurrences of the old URL are removed.
type URLMap map[string]string

// Story is a structured content document fetched from the target space.
// Pristine holds the raw content JSON captured once at fetch time; Content
// is the working copy the rewriter mutates.
type Story struct {
	ID                 int64          `json:"id"`
	UUID               string         `json:"uuid"`
	Name               string         `json:"name"`
	Slug               string         `json:"full_slug"`
	Content            map[string]any `json:"content"`
	Published          bool           `json:"published"`
	UnpublishedChanges bool           `json:"unpublished_changes"`

	Pristine json.RawMessage `json:"-"`
}

// Snapshot captures the pristine copy of the story's content. Call once,
// at fetch time, before any rewriting.
func (s *Story) Snapshot() error {
	raw, err := json.Marshal(s.Content)
	if err != nil {
		return err
	}
	s.Pristine = raw
	return nil
}

// Changed reports whether the working content differs structurally from
// the pristine snapshot. Stories without a snapshot are never persisted.
func (s *Story) Changed() bool {
	if s.Pristine == nil {
		return false
	}
	return !jsonEqual(s.Pristine, s.Content)
}
