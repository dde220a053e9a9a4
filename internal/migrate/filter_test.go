package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssetFilter(t *testing.T) {
	t.Parallel()

	f := NewAssetFilter([]string{"*.psd", "f/123/drafts/**"})

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"extension_match", "https://cdn.source/f/123/x/mock.psd", true},
		{"directory_match", "https://cdn.source/f/123/drafts/a/b.jpg", true},
		{"kept", "https://cdn.source/f/123/final/b.jpg", false},
		{"scheme_insensitive", "http://cdn.source/f/123/x/mock.psd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, f.Excluded(tt.url))
		})
	}
}

func TestAssetFilterNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewAssetFilter(nil))
	var f *AssetFilter
	assert.False(t, f.Excluded("https://cdn.source/f/1/a.jpg"))
}

func TestFilterAssets(t *testing.T) {
	t.Parallel()

	assets := []Asset{
		{ID: 1, Filename: "https://cdn.source/f/1/a.jpg"},
		{ID: 2, Filename: "https://cdn.source/f/1/b.psd"},
		{ID: 3, Filename: "https://cdn.source/f/1/c.png"},
	}
	kept := FilterAssets(assets, NewAssetFilter([]string{"*.psd"}))
	assert.Len(t, kept, 2)
	assert.Equal(t, int64(1), kept[0].ID)
	assert.Equal(t, int64(3), kept[1].ID)

	// Nil filter keeps everything.
	assert.Equal(t, assets, FilterAssets(assets, nil))
}
