package migrate

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"
)

// AssetFilter drops assets matching gitignore-style exclude patterns.
// Patterns are matched against the asset's path below the host, e.g.
// "f/12345/drafts/**" or "*.psd".
type AssetFilter struct {
	matcher *ignore.GitIgnore
}

// NewAssetFilter compiles exclude patterns. Nil is returned for an empty
// pattern list; a nil filter excludes nothing.
func NewAssetFilter(patterns []string) *AssetFilter {
	if len(patterns) == 0 {
		return nil
	}
	return &AssetFilter{matcher: ignore.CompileIgnoreLines(patterns...)}
}

// Excluded reports whether the asset's URL path matches a pattern.
func (f *AssetFilter) Excluded(rawURL string) bool {
	if f == nil || f.matcher == nil {
		return false
	}
	stripped := StripScheme(rawURL)
	if i := strings.IndexByte(stripped, '/'); i >= 0 {
		stripped = stripped[i+1:]
	}
	return f.matcher.MatchesPath(stripped)
}

// FilterAssets returns the assets that survive the filter. Excluded assets
// keep their original URLs in story content; they are simply never
// transferred or rewritten.
func FilterAssets(assets []Asset, f *AssetFilter) []Asset {
	if f == nil {
		return assets
	}
	kept := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if f.Excluded(a.Filename) {
			log.WithField("asset", a.Filename).Info("asset excluded by pattern")
			continue
		}
		kept = append(kept, a)
	}
	return kept
}
