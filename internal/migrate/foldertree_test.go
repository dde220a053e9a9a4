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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFolderOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		folders []AssetFolder
		wantIDs []int64
	}{
		{
			name:    "empty",
			folders: nil,
			wantIDs: []int64{},
		},
		{
			name: "flat",
			folders: []AssetFolder{
				{ID: 1, ParentID: 0}, {ID: 2, ParentID: 0}, {ID: 3, ParentID: 0},
			},
			wantIDs: []int64{1, 2, 3},
		},
		{
			name: "chain_given_reversed",
			folders: []AssetFolder{
				{ID: 3, ParentID: 2}, {ID: 2, ParentID: 1}, {ID: 1, ParentID: 0},
			},
			wantIDs: []int64{1, 2, 3},
		},
		{
			name: "forest_breadth_first",
			folders: []AssetFolder{
				{ID: 10, ParentID: 1}, {ID: 1, ParentID: 0}, {ID: 2, ParentID: 0},
				{ID: 20, ParentID: 2}, {ID: 11, ParentID: 1}, {ID: 100, ParentID: 10},
			},
			wantIDs: []int64{1, 2, 10, 11, 20, 100},
		},
		{
			name: "dangling_parent_skipped",
			folders: []AssetFolder{
				{ID: 1, ParentID: 0}, {ID: 2, ParentID: 99}, {ID: 3, ParentID: 1},
			},
			wantIDs: []int64{1, 3},
		},
		{
			name: "dangling_subtree_skipped",
			folders: []AssetFolder{
				{ID: 1, ParentID: 0}, {ID: 2, ParentID: 99}, {ID: 3, ParentID: 2},
			},
			wantIDs: []int64{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			order := BuildFolderOrder(tt.folders)
			ids := make([]int64, 0, len(order))
			for _, f := range order {
				ids = append(ids, f.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

// Every folder in the output must appear before all of its transitive
// children, regardless of input order.
func TestBuildFolderOrderParentsFirst(t *testing.T) {
	t.Parallel()

	folders := []AssetFolder{
		{ID: 7, ParentID: 5}, {ID: 5, ParentID: 3}, {ID: 3, ParentID: 0},
		{ID: 4, ParentID: 0}, {ID: 6, ParentID: 4}, {ID: 8, ParentID: 6},
		{ID: 9, ParentID: 7},
	}
	order := BuildFolderOrder(folders)
	require.Len(t, order, len(folders))

	pos := make(map[int64]int, len(order))
	for i, f := range order {
		pos[f.ID] = i
	}
	for _, f := range folders {
		if f.ParentID == 0 {
			continue
		}
		assert.Less(t, pos[f.ParentID], pos[f.ID],
			"parent %d must precede child %d", f.ParentID, f.ID)
	}
}
