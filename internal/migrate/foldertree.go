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
	log "github.com/sirupsen/logrus"
)

// BuildFolderOrder orders folders so every folder appears strictly before
// all of its transitive children. Breadth-first from the root set
// (parent_id == 0); within one parent the input order is kept, so the
// output is deterministic for a given input.
//
// Folders whose parent chain never reaches the root are skipped with a
// warning: one stale row in the source should not block the migration, but
// it should not vanish silently either.
func BuildFolderOrder(folders []AssetFolder) []AssetFolder {
	children := make(map[int64][]AssetFolder, len(folders))
	for _, f := range folders {
		children[f.ParentID] = append(children[f.ParentID], f)
	}

	order := make([]AssetFolder, 0, len(folders))
	queue := append([]AssetFolder(nil), children[0]...)
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		order = append(order, f)
		queue = append(queue, children[f.ID]...)
	}

	if len(order) < len(folders) {
		reached := make(map[int64]bool, len(order))
		for _, f := range order {
			reached[f.ID] = true
		}
		for _, f := range folders {
			if !reached[f.ID] {
				log.WithFields(log.Fields{
					"folder": f.ID,
					"name":   f.Name,
					"parent": f.ParentID,
				}).Warn("skipping folder unreachable from root")
			}
		}
	}

	return order
}
