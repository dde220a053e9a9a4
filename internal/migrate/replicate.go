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

	log "github.com/sirupsen/logrus"

	"storymig/internal/common"
)

// FolderCreator creates one asset folder in the target space and returns
// its new id.
type FolderCreator interface {
	CreateFolder(ctx context.Context, name string, parentID int64) (int64, error)
}

// ReplicateFolders recreates the ordered folder sequence in the target
// space and returns the old-id to new-id mapping, seeded with {0: 0}.
//
// This loop is strictly sequential and must stay that way: a child's
// parent remap depends on the id returned by an earlier creation. The
// ordering from BuildFolderOrder guarantees the parent mapping is present
// when each folder is created. Any failure aborts the run; folders already
// created in the target are left behind.
func ReplicateFolders(ctx context.Context, target FolderCreator, order []AssetFolder) (IDMap, error) {
	idMap := IDMap{0: 0}
	for _, f := range order {
		newParent, ok := idMap[f.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: folder %d references unmapped parent %d", common.ErrFolderCreate, f.ID, f.ParentID)
		}
		newID, err := target.CreateFolder(ctx, f.Name, newParent)
		if err != nil {
			return nil, fmt.Errorf("%w: folder %q: %v", common.ErrFolderCreate, f.Name, err)
		}
		idMap[f.ID] = newID
		log.WithFields(log.Fields{"folder": f.Name, "old": f.ID, "new": newID}).Debug("folder replicated")
	}
	return idMap, nil
}
