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

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"storymig/internal/migrate"
)

const perPage = 100

// Space scopes the client to one workspace. It implements both
// migrate.SourceAPI and migrate.TargetAPI; a migration uses two Space
// values sharing one Client.
type Space struct {
	c  *Client
	id int64
}

// NewSpace returns a Space handle for the given space id.
func NewSpace(c *Client, id int64) *Space {
	return &Space{c: c, id: id}
}

// ListFolders fetches all asset folders. The endpoint is not paged.
func (s *Space) ListFolders(ctx context.Context) ([]migrate.AssetFolder, error) {
	data, _, err := s.c.Get(ctx, fmt.Sprintf("spaces/%d/asset_folders", s.id), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		AssetFolders []migrate.AssetFolder `json:"asset_folders"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode asset folders: %w", err)
	}
	return resp.AssetFolders, nil
}

// ListAssets fetches the full asset list, page by page.
func (s *Space) ListAssets(ctx context.Context) ([]migrate.Asset, error) {
	var assets []migrate.Asset
	err := s.listPages(ctx, fmt.Sprintf("spaces/%d/assets", s.id), func(data json.RawMessage) (int, error) {
		var resp struct {
			Assets []migrate.Asset `json:"assets"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return 0, fmt.Errorf("decode assets: %w", err)
		}
		assets = append(assets, resp.Assets...)
		return len(resp.Assets), nil
	})
	return assets, err
}

// ListStories fetches every story with its full content. The paged story
// list carries only metadata, so each story is fetched individually after
// listing. Pristine snapshots are the caller's job.
func (s *Space) ListStories(ctx context.Context) ([]*migrate.Story, error) {
	var ids []int64
	err := s.listPages(ctx, fmt.Sprintf("spaces/%d/stories", s.id), func(data json.RawMessage) (int, error) {
		var resp struct {
			Stories []struct {
				ID int64 `json:"id"`
			} `json:"stories"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return 0, fmt.Errorf("decode stories: %w", err)
		}
		for _, st := range resp.Stories {
			ids = append(ids, st.ID)
		}
		return len(resp.Stories), nil
	})
	if err != nil {
		return nil, err
	}

	stories := make([]*migrate.Story, 0, len(ids))
	for _, id := range ids {
		data, _, err := s.c.Get(ctx, fmt.Sprintf("spaces/%d/stories/%d", s.id, id), nil)
		if err != nil {
			return nil, fmt.Errorf("fetch story %d: %w", id, err)
		}
		var resp struct {
			Story *migrate.Story `json:"story"`
		}
		if err := json.Unmarshal(data, &resp); err != nil || resp.Story == nil {
			return nil, fmt.Errorf("decode story %d: %w", id, err)
		}
		stories = append(stories, resp.Story)
	}
	return stories, nil
}

// CreateFolder creates one asset folder and returns its new id.
func (s *Space) CreateFolder(ctx context.Context, name string, parentID int64) (int64, error) {
	body := map[string]any{
		"asset_folder": map[string]any{
			"name":      name,
			"parent_id": parentID,
		},
	}
	data, err := s.c.Post(ctx, fmt.Sprintf("spaces/%d/asset_folders", s.id), body)
	if err != nil {
		return 0, err
	}
	var resp struct {
		AssetFolder struct {
			ID int64 `json:"id"`
		} `json:"asset_folder"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("decode created folder: %w", err)
	}
	return resp.AssetFolder.ID, nil
}

// NewUpload requests a signed upload destination for a new asset in the
// given folder. This is the only call the transfer pipeline retries.
func (s *Space) NewUpload(ctx context.Context, filename string, folderID int64) (migrate.Upload, error) {
	body := map[string]any{
		"filename":        filename,
		"asset_folder_id": folderID,
		"validate_upload": 1,
	}
	data, err := s.c.Post(ctx, fmt.Sprintf("spaces/%d/assets", s.id), body)
	if err != nil {
		return migrate.Upload{}, err
	}
	var up migrate.Upload
	if err := json.Unmarshal(data, &up); err != nil {
		return migrate.Upload{}, fmt.Errorf("decode upload destination: %w", err)
	}
	return up, nil
}

// Download fetches the source bytes of an asset URL.
func (s *Space) Download(ctx context.Context, rawURL string, dst io.Writer) error {
	return s.c.Download(ctx, rawURL, dst)
}

// SubmitUpload streams staged bytes to the signed destination.
func (s *Space) SubmitUpload(ctx context.Context, up migrate.Upload, src io.Reader) error {
	return s.c.SubmitUpload(ctx, up, src)
}

// FinalizeUpload confirms the upload; the asset is not durable until this
// call succeeds.
func (s *Space) FinalizeUpload(ctx context.Context, up migrate.Upload) error {
	_, _, err := s.c.Get(ctx, fmt.Sprintf("spaces/%d/assets/%d/finish_upload", s.id, up.ID), nil)
	return err
}

// SaveStory persists a rewritten story. publish republishes it in the same
// request, used only for stories that were cleanly published before the
// run.
func (s *Space) SaveStory(ctx context.Context, story *migrate.Story, publish bool) error {
	body := map[string]any{
		"story": map[string]any{
			"content": story.Content,
		},
	}
	if publish {
		body["publish"] = 1
	}
	_, err := s.c.Put(ctx, fmt.Sprintf("spaces/%d/stories/%d", s.id, story.ID), body)
	return err
}

// listPages walks a paged collection endpoint. decode consumes one page's
// body and returns how many items it held; paging stops when the Total
// header is reached or, without a usable Total, when a page comes back
// short.
func (s *Space) listPages(ctx context.Context, p string, decode func(json.RawMessage) (int, error)) error {
	for page := 1; ; page++ {
		q := url.Values{
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		data, hdr, err := s.c.Get(ctx, p, q)
		if err != nil {
			return err
		}
		n, err := decode(data)
		if err != nil {
			return err
		}
		total, terr := strconv.Atoi(hdr.Get("Total"))
		if terr != nil {
			if n < perPage {
				return nil
			}
			continue
		}
		if n == 0 || page*perPage >= total {
			return nil
		}
	}
}
