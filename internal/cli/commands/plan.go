package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"storymig/internal/client"
	"storymig/internal/common"
	"storymig/internal/migrate"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run: report what a migration would do",
	Long: `Fetches folders, assets and stories and reports what a run would
touch: the folder creation order, the assets to transfer (after exclude
patterns), and the stories whose content references a tracked asset.
Nothing is written to the target space.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{Token: cfg.Token, Region: cfg.Region})
	source := client.NewSpace(c, cfg.SourceSpace)
	target := client.NewSpace(c, cfg.TargetSpace)

	folders, err := source.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("%w: folders: %v", common.ErrFetch, err)
	}
	order := migrate.BuildFolderOrder(folders)

	assets, err := source.ListAssets(ctx)
	if err != nil {
		return fmt.Errorf("%w: assets: %v", common.ErrFetch, err)
	}
	kept := migrate.FilterAssets(assets, migrate.NewAssetFilter(cfg.Exclude))

	stories, err := target.ListStories(ctx)
	if err != nil {
		return fmt.Errorf("%w: stories: %v", common.ErrFetch, err)
	}

	fmt.Printf("Folders to create (%d, in order):\n", len(order))
	for _, f := range order {
		fmt.Printf("  %s (id %d, parent %d)\n", f.Name, f.ID, f.ParentID)
	}

	fmt.Printf("Assets to transfer: %d (%d excluded)\n", len(kept), len(assets)-len(kept))

	touched := 0
	for _, s := range stories {
		refs := storyReferences(s, kept)
		if refs > 0 {
			touched++
			fmt.Printf("  story %s references %d tracked asset(s)\n", s.Slug, refs)
		}
	}
	fmt.Printf("Stories referencing tracked assets: %d of %d\n", touched, len(stories))
	return nil
}

// storyReferences counts tracked asset URL occurrences in a story's
// content, using the same scheme-stripped textual match the rewriter uses.
func storyReferences(s *migrate.Story, assets []migrate.Asset) int {
	blob, err := json.Marshal(s.Content)
	if err != nil {
		return 0
	}
	text := string(blob)
	n := 0
	for _, a := range assets {
		stripped := migrate.StripScheme(a.Filename)
		n += strings.Count(text, "https://"+stripped)
		n += strings.Count(text, "http://"+stripped)
	}
	return n
}
