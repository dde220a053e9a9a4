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
	"reflect"
	"sync/atomic"

	"github.com/pmezard/go-difflib/difflib"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// editableField is the editor-only bookkeeping key the CMS injects into
// content; it must not be sent back on save.
const editableField = "_editable"

// StoryPersister saves one story to the target space, optionally
// republishing it.
type StoryPersister interface {
	SaveStory(ctx context.Context, story *Story, publish bool) error
}

// StoryOutcome is the settled result of one story persist.
type StoryOutcome struct {
	Story *Story
	Err   error
}

// Reconciler diffs rewritten stories against their pristine snapshots and
// persists only the changed ones, with at most Width persists in flight.
type Reconciler struct {
	API   StoryPersister
	Width int

	// Done is incremented once per settled persist. Optional.
	Done *atomic.Int64
}

// Changed returns the subset of stories whose working content differs
// structurally from its pristine snapshot, in input order.
func Changed(stories []*Story) []*Story {
	var changed []*Story
	for _, s := range stories {
		if s.Changed() {
			changed = append(changed, s)
		}
	}
	return changed
}

// Run persists every changed story. Persists are concurrent, unordered and
// independent: a failure is recorded in that story's outcome and never
// aborts the others. The publish flag is set only for stories that were
// cleanly published before the run (published with no unpublished draft
// changes), so the migration never auto-publishes a dirty draft and never
// turns a clean story into one with unpublished changes.
func (r *Reconciler) Run(ctx context.Context, stories []*Story) []StoryOutcome {
	changed := Changed(stories)
	outcomes := make([]StoryOutcome, len(changed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Width)
	for i, s := range changed {
		g.Go(func() error {
			if log.IsLevelEnabled(log.DebugLevel) {
				logContentDiff(s)
			}
			delete(s.Content, editableField)
			publish := s.Published && !s.UnpublishedChanges
			err := r.API.SaveStory(gctx, s, publish)
			if err != nil {
				log.WithFields(log.Fields{"story": s.Slug, "id": s.ID}).WithError(err).Warn("story persist failed")
			}
			outcomes[i] = StoryOutcome{Story: s, Err: err}
			if r.Done != nil {
				r.Done.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Updated counts the successful persists in a settled outcome set.
func Updated(outcomes []StoryOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// jsonEqual compares a pristine raw snapshot with a working value after
// normalizing both through JSON, so map ordering and numeric types never
// produce spurious diffs.
func jsonEqual(pristine json.RawMessage, working any) bool {
	var a any
	if err := json.Unmarshal(pristine, &a); err != nil {
		return false
	}
	raw, err := json.Marshal(working)
	if err != nil {
		return false
	}
	var b any
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// logContentDiff logs a unified diff between a story's pristine and
// rewritten content. Debug-level only; indented JSON keeps the hunks
// readable.
func logContentDiff(s *Story) {
	var pristine any
	if err := json.Unmarshal(s.Pristine, &pristine); err != nil {
		return
	}
	before, err := json.MarshalIndent(pristine, "", "  ")
	if err != nil {
		return
	}
	after, err := json.MarshalIndent(s.Content, "", "  ")
	if err != nil {
		return
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: s.Slug + " (pristine)",
		ToFile:   s.Slug + " (rewritten)",
		Context:  2,
	}
	if text, err := difflib.GetUnifiedDiffString(diff); err == nil {
		log.WithField("story", s.Slug).Debugf("content diff:\n%s", text)
	}
}
