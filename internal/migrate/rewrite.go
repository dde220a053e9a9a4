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
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StripScheme removes the transport scheme from a URL so http and https
// variants of the same asset reference compare equal.
func StripScheme(rawURL string) string {
	for _, p := range []string{"https://", "http://", "//"} {
		if strings.HasPrefix(rawURL, p) {
			return strings.TrimPrefix(rawURL, p)
		}
	}
	return rawURL
}

// RewriteStories substitutes asset URLs across the whole story collection
// in one pass: the collection's content is serialized to a single JSON
// text, each old URL (in both scheme variants) is globally replaced with
// its new URL or removed if the asset failed, and the text is parsed back.
//
// This is deliberately textual, not a tree walk: it also matches
// asset-URL-shaped text outside genuine reference fields (e.g. inside
// rich-text markup), which is what makes the migration complete.
// Substitution order is fixed (sorted keys) and replacement values never
// match a pending pattern, so the result is deterministic.
func RewriteStories(stories []*Story, urls URLMap) error {
	if len(stories) == 0 || len(urls) == 0 {
		return nil
	}

	contents := make([]map[string]any, len(stories))
	for i, s := range stories {
		contents[i] = s.Content
	}
	blob, err := json.Marshal(contents)
	if err != nil {
		return fmt.Errorf("serialize stories: %w", err)
	}

	text := string(blob)
	for _, old := range sortedKeys(urls) {
		repl := urls[old]
		text = strings.ReplaceAll(text, "https://"+old, repl)
		text = strings.ReplaceAll(text, "http://"+old, repl)
	}

	var rewritten []map[string]any
	if err := json.Unmarshal([]byte(text), &rewritten); err != nil {
		return fmt.Errorf("reparse rewritten stories: %w", err)
	}
	for i, s := range stories {
		s.Content = rewritten[i]
	}
	return nil
}

// RewriteStoriesStructural is the stricter opt-in mode: it walks each
// story's content tree and replaces only leaf string values exactly equal
// to a tracked URL (scheme-stripped comparison). URL-shaped text embedded
// in larger strings is left alone.
func RewriteStoriesStructural(stories []*Story, urls URLMap) {
	for _, s := range stories {
		if v, changed := rewriteValue(s.Content, urls); changed {
			s.Content = v.(map[string]any)
		}
	}
}

func rewriteValue(v any, urls URLMap) (any, bool) {
	switch val := v.(type) {
	case string:
		if repl, ok := urls[StripScheme(val)]; ok {
			return repl, true
		}
		return val, false
	case map[string]any:
		changed := false
		for k, child := range val {
			nv, c := rewriteValue(child, urls)
			if c {
				val[k] = nv
				changed = true
			}
		}
		return val, changed
	case []any:
		changed := false
		for i, child := range val {
			nv, c := rewriteValue(child, urls)
			if c {
				val[i] = nv
				changed = true
			}
		}
		return val, changed
	default:
		return val, false
	}
}

func sortedKeys(m URLMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
