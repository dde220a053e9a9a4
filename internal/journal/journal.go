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

// Package journal records a run's settled outcomes in a local libsql file
// for post-run inspection.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"storymig/internal/migrate"
)

// Journal is a per-run journal. It implements migrate.Recorder.
type Journal struct {
	db    *bun.DB
	runID string
}

// Open opens (creating if needed) the journal file and begins a new run
// row. The returned Journal is safe for concurrent recording.
func Open(ctx context.Context, path string, sourceSpace, targetSpace int64) (*Journal, error) {
	sqlDB, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db := bun.NewDB(sqlDB, sqlitedialect.New())

	for _, model := range []any{
		(*RunModel)(nil), (*FolderModel)(nil), (*AssetModel)(nil), (*StoryModel)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create journal tables: %w", err)
		}
	}

	j := &Journal{db: db, runID: uuid.NewString()}
	run := &RunModel{
		ID:          j.runID,
		SourceSpace: sourceSpace,
		TargetSpace: targetSpace,
		StartedAt:   time.Now().Unix(),
	}
	if _, err := db.NewInsert().Model(run).Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("begin journal run: %w", err)
	}
	return j, nil
}

// RunID returns the run's uuid.
func (j *Journal) RunID() string {
	return j.runID
}

// RecordFolder records one replicated folder.
func (j *Journal) RecordFolder(ctx context.Context, oldID, newID int64, name string) error {
	_, err := j.db.NewInsert().Model(&FolderModel{
		RunID: j.runID,
		OldID: oldID,
		NewID: newID,
		Name:  name,
	}).Exec(ctx)
	return err
}

// RecordAsset records one settled asset transfer.
func (j *Journal) RecordAsset(ctx context.Context, o migrate.TransferOutcome) error {
	m := &AssetModel{
		RunID:     j.runID,
		SourceURL: o.Asset.Filename,
		NewURL:    o.NewURL,
		Attempts:  o.Attempts,
	}
	if o.Err != nil {
		m.Error = o.Err.Error()
	}
	_, err := j.db.NewInsert().Model(m).Exec(ctx)
	return err
}

// RecordStory records one settled story persist.
func (j *Journal) RecordStory(ctx context.Context, o migrate.StoryOutcome) error {
	m := &StoryModel{
		RunID:   j.runID,
		StoryID: o.Story.ID,
		Slug:    o.Story.Slug,
	}
	if o.Err != nil {
		m.Error = o.Err.Error()
	}
	_, err := j.db.NewInsert().Model(m).Exec(ctx)
	return err
}

// Finish closes out the run row with the aggregate summary.
func (j *Journal) Finish(ctx context.Context, updated, assetsFailed int) error {
	_, err := j.db.NewUpdate().Model((*RunModel)(nil)).
		Set("finished_at = ?", time.Now().Unix()).
		Set("stories_updated = ?", updated).
		Set("assets_failed = ?", assetsFailed).
		Where("id = ?", j.runID).
		Exec(ctx)
	return err
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
