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
	"io"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"storymig/internal/staging"
	"storymig/internal/util"
)

// AssetAPI is the slice of the collaborator the transfer pool needs:
// source download plus the target's three-step upload handshake.
type AssetAPI interface {
	Download(ctx context.Context, rawURL string, dst io.Writer) error
	NewUpload(ctx context.Context, filename string, folderID int64) (Upload, error)
	SubmitUpload(ctx context.Context, up Upload, src io.Reader) error
	FinalizeUpload(ctx context.Context, up Upload) error
}

// Transferrer moves assets from the source space into the target space
// with at most Width transfers in flight. A single asset's failure never
// aborts the batch; the pool settles every asset before returning.
type Transferrer struct {
	API     AssetAPI
	Staging *staging.Area
	IDMap   IDMap
	Width   int

	// Done is incremented once per settled asset. Optional.
	Done *atomic.Int64
}

// Run transfers all assets and returns one outcome per asset, in input
// order. Each worker writes only its own slot; the slice is read only
// after the join, so no locking is needed. Run returns once every asset
// has settled.
func (t *Transferrer) Run(ctx context.Context, assets []Asset) []TransferOutcome {
	outcomes := make([]TransferOutcome, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.Width)
	for i, a := range assets {
		g.Go(func() error {
			outcomes[i] = t.transfer(gctx, a)
			if t.Done != nil {
				t.Done.Add(1)
			}
			return nil
		})
	}
	// Workers never return errors; Wait is purely the join barrier.
	_ = g.Wait()

	return outcomes
}

// transfer runs the per-asset pipeline: stage, download, request an upload
// destination (the only retried step), submit the staged bytes, finalize.
// The staging file is discarded whether or not the transfer succeeded.
func (t *Transferrer) transfer(ctx context.Context, a Asset) TransferOutcome {
	out := TransferOutcome{Asset: a}

	f, rel, err := t.Staging.Create(a.Filename)
	if err != nil {
		out.Err = err
		return out
	}
	defer t.Staging.Discard(rel)

	if err := t.API.Download(ctx, a.Filename, f); err != nil {
		_ = f.Close()
		out.Err = fmt.Errorf("download %s: %w", a.Filename, err)
		return out
	}
	if err := f.Close(); err != nil {
		out.Err = fmt.Errorf("stage %s: %w", a.Filename, err)
		return out
	}

	folderID, ok := t.IDMap[a.FolderID]
	if !ok {
		out.Err = fmt.Errorf("asset %s: no mapping for folder %d", a.Filename, a.FolderID)
		return out
	}

	_, name, err := staging.SplitURL(a.Filename)
	if err != nil {
		out.Err = err
		return out
	}

	// Attempt state is local to this transfer; there is no cross-asset
	// retry bookkeeping.
	attempts := 0
	up, err := util.RetryWithResult(ctx, func() (Upload, error) {
		attempts++
		return t.API.NewUpload(ctx, name, folderID)
	}, util.UploadRetryOptions(ctx)...)
	out.Attempts = attempts
	if err != nil {
		out.Err = fmt.Errorf("new upload for %s: %w", a.Filename, err)
		return out
	}

	src, err := t.Staging.Open(rel)
	if err != nil {
		out.Err = fmt.Errorf("reopen staged %s: %w", rel, err)
		return out
	}
	err = t.API.SubmitUpload(ctx, up, src)
	_ = src.Close()
	if err != nil {
		out.Err = fmt.Errorf("submit %s: %w", a.Filename, err)
		return out
	}

	if err := t.API.FinalizeUpload(ctx, up); err != nil {
		out.Err = fmt.Errorf("finalize %s: %w", a.Filename, err)
		return out
	}

	out.NewURL = up.PrettyURL
	log.WithFields(log.Fields{"asset": a.Filename, "new": out.NewURL}).Debug("asset transferred")
	return out
}

// BuildURLMap collapses settled outcomes into the substitution map used by
// the rewriter. Keys are scheme-stripped; failed assets map to the empty
// string so their references get removed.
func BuildURLMap(outcomes []TransferOutcome) URLMap {
	m := make(URLMap, len(outcomes))
	for _, o := range outcomes {
		m[StripScheme(o.Asset.Filename)] = o.NewURL
	}
	return m
}
