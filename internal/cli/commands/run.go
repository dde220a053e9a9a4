package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"storymig/internal/client"
	"storymig/internal/common"
	"storymig/internal/journal"
	"storymig/internal/migrate"
	"storymig/internal/staging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the migration",
	Long: `Runs the full pipeline against the configured spaces:

  1. Fetch stories from the target space and snapshot their content.
  2. Replicate the source asset folder tree into the target (sequential).
  3. Transfer assets with bounded concurrency and bounded retries.
  4. Rewrite asset URLs across all story content.
  5. Persist only the stories whose content actually changed.

A run either completes or must be restarted from scratch; there is no
cross-run resume.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runWidth      int
	runStructural bool
	runNoJournal  bool
)

func init() {
	runCmd.Flags().IntVarP(&runWidth, "concurrency", "k", 0, "Max concurrent asset transfers (overrides config)")
	runCmd.Flags().BoolVar(&runStructural, "structural", false, "Strict structural URL rewrite (leaf values only)")
	runCmd.Flags().BoolVar(&runNoJournal, "no-journal", false, "Skip writing the run journal")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if runWidth > 0 {
		cfg.Concurrency = runWidth
	}
	if runStructural {
		cfg.StructuralRewrite = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	area, err := staging.OpenDir(cfg.StagingDir)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrSetup, err)
	}
	defer area.Close()

	c := client.New(client.Config{Token: cfg.Token, Region: cfg.Region})
	source := client.NewSpace(c, cfg.SourceSpace)
	target := client.NewSpace(c, cfg.TargetSpace)

	opts := migrate.Options{
		Source:     source,
		Target:     target,
		Staging:    area,
		Width:      cfg.Concurrency,
		Exclude:    cfg.Exclude,
		Structural: cfg.StructuralRewrite,
	}

	var j *journal.Journal
	if !runNoJournal {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o700); err != nil {
			return fmt.Errorf("%w: %v", common.ErrSetup, err)
		}
		j, err = journal.Open(ctx, cfg.JournalPath, cfg.SourceSpace, cfg.TargetSpace)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrSetup, err)
		}
		defer j.Close()
		opts.Recorder = j
		log.WithField("run", j.RunID()).Debug("journal opened")
	}

	sum, err := migrate.Run(ctx, opts)
	if err != nil {
		return err
	}
	if j != nil {
		if err := j.Finish(ctx, sum.StoriesUpdated, sum.AssetsFailed); err != nil {
			log.WithError(err).Warn("journal: finish failed")
		}
	}

	fmt.Printf("Folders created:    %d\n", sum.FoldersCreated)
	fmt.Printf("Assets transferred: %d (%d failed, %d excluded)\n",
		sum.AssetsTransferred, sum.AssetsFailed, sum.AssetsExcluded)
	fmt.Printf("Stories updated:    %d (%d failed, %d unchanged)\n",
		sum.StoriesUpdated, sum.StoriesFailed, sum.StoriesUnchanged)
	return nil
}
