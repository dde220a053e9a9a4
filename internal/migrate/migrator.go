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

package migrate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"storymig/internal/common"
	"storymig/internal/staging"
)

// DefaultWidth is the worker pool width used when none is configured.
const DefaultWidth = 6

// progressInterval is how often the long stages report settled counts.
var progressInterval = 5 * time.Second

// startProgress periodically logs how many units of a stage have settled
// until the returned stop func is called.
func startProgress(stage string, done *atomic.Int64, total int) func() {
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(progressInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				log.WithFields(log.Fields{"done": done.Load(), "total": total}).Info(stage)
			}
		}
	}()
	return func() { close(stop) }
}

// SourceAPI reads the source space.
type SourceAPI interface {
	ListFolders(ctx context.Context) ([]AssetFolder, error)
	ListAssets(ctx context.Context) ([]Asset, error)
}

// TargetAPI reads and writes the target space.
type TargetAPI interface {
	FolderCreator
	AssetAPI
	StoryPersister
	ListStories(ctx context.Context) ([]*Story, error)
}

// Recorder receives settled pipeline events for the run journal. Recording
// failures are logged, never escalated; the journal is evidence, not
// control flow.
type Recorder interface {
	RecordFolder(ctx context.Context, oldID, newID int64, name string) error
	RecordAsset(ctx context.Context, o TransferOutcome) error
	RecordStory(ctx context.Context, o StoryOutcome) error
}

// Options configures a migration run.
type Options struct {
	Source  SourceAPI
	Target  TargetAPI
	Staging *staging.Area

	// Width bounds both the asset transfer pool and the story persist
	// pool. Zero means DefaultWidth.
	Width int

	// Exclude holds gitignore-style patterns matched against asset paths.
	Exclude []string

	// Structural switches the rewriter to the strict leaf-walk mode.
	Structural bool

	Recorder Recorder
}

// Summary is the aggregate result of a completed run.
type Summary struct {
	FoldersCreated    int
	AssetsTransferred int
	AssetsFailed      int
	AssetsExcluded    int
	StoriesUpdated    int
	StoriesFailed     int
	StoriesUnchanged  int
}

// Run executes the pipeline: fetch stories and folders, replicate the
// folder tree, transfer assets, rewrite story content, reconcile and
// persist. Setup, fetch and folder replication errors are fatal; asset and
// story failures degrade only their own unit and are tallied in the
// summary.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	sum := &Summary{}

	log.Info("fetching stories from target space")
	stories, err := opts.Target.ListStories(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: stories: %v", common.ErrFetch, err)
	}
	for _, s := range stories {
		if err := s.Snapshot(); err != nil {
			return nil, fmt.Errorf("%w: snapshot story %d: %v", common.ErrFetch, s.ID, err)
		}
	}

	log.Info("fetching asset folders from source space")
	folders, err := opts.Source.ListFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: folders: %v", common.ErrFetch, err)
	}

	order := BuildFolderOrder(folders)
	log.WithField("folders", len(order)).Info("replicating folder tree")
	idMap, err := ReplicateFolders(ctx, opts.Target, order)
	if err != nil {
		return nil, err
	}
	sum.FoldersCreated = len(order)
	if opts.Recorder != nil {
		for _, f := range order {
			if rerr := opts.Recorder.RecordFolder(ctx, f.ID, idMap[f.ID], f.Name); rerr != nil {
				log.WithError(rerr).Warn("journal: folder record failed")
			}
		}
	}

	log.Info("fetching asset list from source space")
	assets, err := opts.Source.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: assets: %v", common.ErrFetch, err)
	}
	kept := FilterAssets(assets, NewAssetFilter(opts.Exclude))
	sum.AssetsExcluded = len(assets) - len(kept)

	log.WithFields(log.Fields{"assets": len(kept), "width": opts.Width}).Info("transferring assets")
	settled := &atomic.Int64{}
	pool := &Transferrer{
		API:     opts.Target,
		Staging: opts.Staging,
		IDMap:   idMap,
		Width:   opts.Width,
		Done:    settled,
	}
	stopProgress := startProgress("asset transfer progress", settled, len(kept))
	outcomes := pool.Run(ctx, kept)
	stopProgress()
	for _, o := range outcomes {
		if o.Err != nil {
			sum.AssetsFailed++
			log.WithField("asset", o.Asset.Filename).WithError(o.Err).Warn("asset transfer failed")
		} else {
			sum.AssetsTransferred++
		}
		if opts.Recorder != nil {
			if rerr := opts.Recorder.RecordAsset(ctx, o); rerr != nil {
				log.WithError(rerr).Warn("journal: asset record failed")
			}
		}
	}

	log.Info("rewriting story content")
	urls := BuildURLMap(outcomes)
	if opts.Structural {
		RewriteStoriesStructural(stories, urls)
	} else if err := RewriteStories(stories, urls); err != nil {
		return nil, fmt.Errorf("rewrite stories: %w", err)
	}

	changed := Changed(stories)
	log.WithField("stories", len(changed)).Info("reconciling stories")
	persisted := &atomic.Int64{}
	rec := &Reconciler{API: opts.Target, Width: opts.Width, Done: persisted}
	stopProgress = startProgress("story persist progress", persisted, len(changed))
	storyOutcomes := rec.Run(ctx, changed)
	stopProgress()
	sum.StoriesUpdated = Updated(storyOutcomes)
	sum.StoriesFailed = len(storyOutcomes) - sum.StoriesUpdated
	sum.StoriesUnchanged = len(stories) - len(changed)
	if opts.Recorder != nil {
		for _, o := range storyOutcomes {
			if rerr := opts.Recorder.RecordStory(ctx, o); rerr != nil {
				log.WithError(rerr).Warn("journal: story record failed")
			}
		}
	}

	log.WithFields(log.Fields{
		"stories_updated": sum.StoriesUpdated,
		"assets_failed":   sum.AssetsFailed,
	}).Info("migration complete")
	return sum, nil
}
