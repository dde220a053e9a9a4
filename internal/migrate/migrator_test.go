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
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	. "github.com/onsi/gomega"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"storymig/internal/common"
	"storymig/internal/staging"
)

// fakeSource implements SourceAPI.
type fakeSource struct {
	folders []AssetFolder
	assets  []Asset

	folderErr error
	assetErr  error
}

func (s *fakeSource) ListFolders(context.Context) ([]AssetFolder, error) {
	return s.folders, s.folderErr
}

func (s *fakeSource) ListAssets(context.Context) ([]Asset, error) {
	return s.assets, s.assetErr
}

// fakeTarget implements TargetAPI on top of the transfer/replicate/persist
// fakes.
type fakeTarget struct {
	*fakeAssetAPI
	*fakeFolderCreator
	*fakePersister

	stories  []*Story
	storyErr error
}

func (t *fakeTarget) ListStories(context.Context) ([]*Story, error) {
	return t.stories, t.storyErr
}

// recorderSpy counts journal callbacks.
type recorderSpy struct {
	mu                       sync.Mutex
	folders, assets, stories int
}

func (r *recorderSpy) RecordFolder(context.Context, int64, int64, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.folders++
	return nil
}

func (r *recorderSpy) RecordAsset(context.Context, TransferOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets++
	return nil
}

func (r *recorderSpy) RecordStory(context.Context, StoryOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stories++
	return nil
}

// Folders root -> A -> B, one asset under A and one under root, the
// root-level transfer forced to fail. Expect three ordered folder-create
// calls, two transfer attempts, and exactly one story persisted with the
// surviving asset's new URL and the failed asset's URL removed.
func TestMigrationEndToEnd(t *testing.T) {
	g := NewWithT(t)

	const (
		survivingURL = "https://cdn.source/f/123/A/pic.jpg"
		failingURL   = "https://cdn.source/f/123/root/logo.png"
	)

	source := &fakeSource{
		folders: []AssetFolder{
			{ID: 3, ParentID: 2, Name: "B"},
			{ID: 1, ParentID: 0, Name: "root"},
			{ID: 2, ParentID: 1, Name: "A"},
		},
		assets: []Asset{
			{ID: 10, Filename: survivingURL, FolderID: 2},
			{ID: 11, Filename: failingURL, FolderID: 1},
		},
	}

	api := newFakeAssetAPI()
	api.downloadErr = map[string]error{failingURL: errors.New("connection reset")}

	touched := &Story{
		ID: 100, Slug: "home", Published: true,
		Content: map[string]any{
			"hero": survivingURL,
			"logo": failingURL,
		},
	}
	untouched := &Story{
		ID: 101, Slug: "about",
		Content: map[string]any{"body": "no assets here"},
	}

	target := &fakeTarget{
		fakeAssetAPI:      api,
		fakeFolderCreator: &fakeFolderCreator{},
		fakePersister:     &fakePersister{},
		stories:           []*Story{touched, untouched},
	}

	spy := &recorderSpy{}
	sum, err := Run(context.Background(), Options{
		Source:   source,
		Target:   target,
		Staging:  staging.New(memfs.New()),
		Width:    2,
		Recorder: spy,
	})
	g.Expect(err).NotTo(HaveOccurred())

	// Folder replication: sequential, parents before children.
	g.Expect(target.fakeFolderCreator.calls).To(Equal([]folderCall{
		{name: "root", parentID: 0},
		{name: "A", parentID: 1001},
		{name: "B", parentID: 1002},
	}))
	g.Expect(sum.FoldersCreated).To(Equal(3))

	// Both assets attempted, one settled failed.
	g.Expect(sum.AssetsTransferred).To(Equal(1))
	g.Expect(sum.AssetsFailed).To(Equal(1))

	// The surviving asset was uploaded into the remapped folder for A.
	g.Expect(api.folderIDs["pic.jpg"]).To(Equal(int64(1002)))

	// Exactly one story persisted: the one whose content changed.
	g.Expect(target.fakePersister.calls).To(HaveLen(1))
	call := target.fakePersister.calls[0]
	g.Expect(call.storyID).To(Equal(int64(100)))
	g.Expect(call.publish).To(BeTrue(), "clean published story is republished")

	blob, merr := json.Marshal(call.content)
	g.Expect(merr).NotTo(HaveOccurred())
	g.Expect(string(blob)).NotTo(ContainSubstring("cdn.source"),
		"no source URL survives the rewrite")
	g.Expect(call.content["logo"]).To(Equal(""), "failed asset URL removed")
	g.Expect(call.content["hero"].(string)).To(HaveSuffix("pic.jpg"))
	g.Expect(strings.HasPrefix(call.content["hero"].(string), "https://cdn.example/")).To(BeTrue())

	g.Expect(sum.StoriesUpdated).To(Equal(1))
	g.Expect(sum.StoriesUnchanged).To(Equal(1))

	// Journal saw every settled unit.
	g.Expect(spy.folders).To(Equal(3))
	g.Expect(spy.assets).To(Equal(2))
	g.Expect(spy.stories).To(Equal(1))
}

// While the transfer pool runs, the settled-asset count is reported
// periodically. Not parallel: it shortens the reporting interval and
// captures global log output.
func TestMigrationProgressReporting(t *testing.T) {
	g := NewWithT(t)

	oldInterval := progressInterval
	progressInterval = time.Millisecond
	defer func() { progressInterval = oldInterval }()

	hook := logtest.NewGlobal()
	defer hook.Reset()

	api := newFakeAssetAPI()
	api.delay = 30 * time.Millisecond
	source := &fakeSource{assets: testAssets(4)}
	target := &fakeTarget{
		fakeAssetAPI:      api,
		fakeFolderCreator: &fakeFolderCreator{},
		fakePersister:     &fakePersister{},
	}

	_, err := Run(context.Background(), Options{
		Source:  source,
		Target:  target,
		Staging: staging.New(memfs.New()),
		Width:   2,
	})
	g.Expect(err).NotTo(HaveOccurred())

	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "asset transfer progress" {
			g.Expect(e.Data).To(HaveKey("done"))
			g.Expect(e.Data["total"]).To(Equal(4))
			found = true
		}
	}
	g.Expect(found).To(BeTrue(), "expected progress entries while transfers ran")
}

func TestMigrationFetchErrorsAreFatal(t *testing.T) {
	g := NewWithT(t)

	base := func() (*fakeSource, *fakeTarget) {
		return &fakeSource{}, &fakeTarget{
			fakeAssetAPI:      newFakeAssetAPI(),
			fakeFolderCreator: &fakeFolderCreator{},
			fakePersister:     &fakePersister{},
		}
	}

	source, target := base()
	target.storyErr = errors.New("boom")
	_, err := Run(context.Background(), Options{
		Source: source, Target: target, Staging: staging.New(memfs.New()),
	})
	g.Expect(errors.Is(err, common.ErrFetch)).To(BeTrue())

	source, target = base()
	source.folderErr = errors.New("boom")
	_, err = Run(context.Background(), Options{
		Source: source, Target: target, Staging: staging.New(memfs.New()),
	})
	g.Expect(errors.Is(err, common.ErrFetch)).To(BeTrue())

	source, target = base()
	source.assetErr = errors.New("boom")
	_, err = Run(context.Background(), Options{
		Source: source, Target: target, Staging: staging.New(memfs.New()),
	})
	g.Expect(errors.Is(err, common.ErrFetch)).To(BeTrue())
}

func TestMigrationExcludePatterns(t *testing.T) {
	g := NewWithT(t)

	source := &fakeSource{
		assets: []Asset{
			{ID: 1, Filename: "https://cdn.source/f/1/x/keep.jpg", FolderID: 0},
			{ID: 2, Filename: "https://cdn.source/f/1/x/skip.psd", FolderID: 0},
		},
	}
	target := &fakeTarget{
		fakeAssetAPI:      newFakeAssetAPI(),
		fakeFolderCreator: &fakeFolderCreator{},
		fakePersister:     &fakePersister{},
	}

	sum, err := Run(context.Background(), Options{
		Source:  source,
		Target:  target,
		Staging: staging.New(memfs.New()),
		Exclude: []string{"*.psd"},
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sum.AssetsExcluded).To(Equal(1))
	g.Expect(sum.AssetsTransferred).To(Equal(1))
	g.Expect(target.fakeAssetAPI.uploads).NotTo(HaveKey("skip.psd"))
}
