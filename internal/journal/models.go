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

package journal

import (
	"github.com/uptrace/bun"
)

// Bun models for the run journal tables. One row per settled unit; the
// journal is append-only evidence of what a run did, not resume state.

// RunModel represents the runs table
type RunModel struct {
	bun.BaseModel `bun:"table:runs"`

	ID          string `bun:"id,pk"` // run uuid
	SourceSpace int64  `bun:"source_space,notnull"`
	TargetSpace int64  `bun:"target_space,notnull"`
	StartedAt   int64  `bun:"started_at,notnull"`  // Unix timestamp
	FinishedAt  int64  `bun:"finished_at,nullzero"`
	Updated     int64  `bun:"stories_updated,nullzero"`
	Failed      int64  `bun:"assets_failed,nullzero"`
}

// FolderModel represents the folders table
type FolderModel struct {
	bun.BaseModel `bun:"table:folders"`

	RunID string `bun:"run_id,notnull"`
	OldID int64  `bun:"old_id,notnull"`
	NewID int64  `bun:"new_id,notnull"`
	Name  string `bun:"name,notnull"`
}

// AssetModel represents the assets table
type AssetModel struct {
	bun.BaseModel `bun:"table:assets"`

	RunID     string `bun:"run_id,notnull"`
	SourceURL string `bun:"source_url,notnull"`
	NewURL    string `bun:"new_url"`
	Attempts  int    `bun:"attempts,notnull"`
	Error     string `bun:"error"`
}

// StoryModel represents the stories table
type StoryModel struct {
	bun.BaseModel `bun:"table:stories"`

	RunID   string `bun:"run_id,notnull"`
	StoryID int64  `bun:"story_id,notnull"`
	Slug    string `bun:"slug,notnull"`
	Error   string `bun:"error"`
}
