package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-moments/internal/clustering"
	"github.com/kozaktomas/photo-moments/internal/config"
	"github.com/kozaktomas/photo-moments/internal/media"
	"github.com/kozaktomas/photo-moments/internal/moments"
	"github.com/kozaktomas/photo-moments/internal/prompt"
)

var momentsCmd = &cobra.Command{
	Use:   "moments",
	Short: "Cluster the library into moments",
	Long: `Group photos and videos into moments: captures no more than three hours
apart that were taken at the same place. Moments smaller than the minimum
cluster size are dropped.

Examples:
  photo-moments moments --from 2026-06-01 --to 2026-08-31
  photo-moments moments --prompt "dogs in the mountains" --json
  photo-moments moments --save --save-key 1750000000000`,
	Args: cobra.NoArgs,
	RunE: runMoments,
}

func init() {
	rootCmd.AddCommand(momentsCmd)

	momentsCmd.Flags().String("prompt", "", "Only cluster media matching a natural-language prompt")
	momentsCmd.Flags().String("from", "", "Only media captured on or after this date (YYYY-MM-DD)")
	momentsCmd.Flags().String("to", "", "Only media captured on or before this date (YYYY-MM-DD)")
	momentsCmd.Flags().StringSlice("kinds", nil, "Media kinds to include (image, video)")
	momentsCmd.Flags().Bool("json", false, "Output clusters as JSON")
	momentsCmd.Flags().Bool("save", false, "Save clusters as PhotoPrism albums")
	momentsCmd.Flags().Int64Slice("save-key", nil, "Only save the clusters with these keys (repeatable)")
}

type momentSummary struct {
	Key       int64     `json:"key"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Count     int       `json:"count"`
	Cover     string    `json:"cover"`
	Album     string    `json:"album,omitempty"`
	SaveError string    `json:"save_error,omitempty"`
}

func runMoments(cmd *cobra.Command, args []string) error {
	promptText := mustGetString(cmd, "prompt")
	jsonOutput := mustGetBool(cmd, "json")
	save := mustGetBool(cmd, "save")
	saveKeys := mustGetInt64Slice(cmd, "save-key")

	timeRange, err := parseTimeRange(mustGetString(cmd, "from"), mustGetString(cmd, "to"))
	if err != nil {
		return err
	}
	kinds, err := parseKinds(mustGetStringSlice(cmd, "kinds"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Loading media"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	cfg := config.Load()
	a, err := newApp(ctx, cfg, appOptions{
		timeRange:  timeRange,
		kinds:      kinds,
		onProgress: func(_ string, p clustering.Progress) { updateMomentsBar(bar, p) },
	})
	if err != nil {
		return err
	}
	defer a.close()
	defer a.logUsage()

	clusters, err := a.organizer.Run(ctx, promptText)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		if errors.Is(err, prompt.ErrNoClassifier) {
			return fmt.Errorf("%w: set LABEL_PROVIDER to filter by prompt", err)
		}
		return fmt.Errorf("clustering failed: %w", err)
	}

	summaries := make([]momentSummary, len(clusters))
	for i, c := range clusters {
		summaries[i] = summarize(c)
	}

	if save {
		spec := prompt.Interpret(promptText)
		for i := range summaries {
			s := &summaries[i]
			if len(saveKeys) > 0 && !slices.Contains(saveKeys, s.Key) {
				continue
			}
			title := moments.DefaultTitle(clusters[i])
			saved, err := a.organizer.SaveCluster(ctx, spec, s.Key, title)
			if err != nil {
				log.Warn().Err(err).Int64("key", s.Key).Msg("saving cluster failed")
				s.SaveError = err.Error()
				continue
			}
			s.Album = title
			if len(saved) < s.Count {
				log.Warn().Int64("key", s.Key).Int("saved", len(saved)).Int("total", s.Count).Msg("album is missing items")
			}
		}
	}

	if jsonOutput {
		return outputJSON(summaries)
	}
	printMoments(summaries, &cfg.PhotoPrism)
	return nil
}

func summarize(c media.Cluster) momentSummary {
	s := momentSummary{Key: c.Key, Title: c.Title, Count: len(c.Members)}
	if len(c.Members) > 0 {
		// members are ordered newest first
		s.End = c.Members[0].CapturedTime()
		s.Start = c.Members[len(c.Members)-1].CapturedTime()
		s.Cover = c.Members[0].LocationURI
	}
	return s
}

func updateMomentsBar(bar *progressbar.ProgressBar, p clustering.Progress) {
	if bar == nil {
		return
	}
	switch p.Phase {
	case clustering.PhaseLoading:
		bar.Describe("Loading media")
	case clustering.PhaseTemporal:
		bar.ChangeMax(p.Total)
		bar.Describe("Clustering by place")
		_ = bar.Set(0)
	case clustering.PhaseSpatial:
		bar.Describe(fmt.Sprintf("Clustering by place (%d moments)", p.Clusters))
		_ = bar.Set(p.Current)
	}
}

func printMoments(summaries []momentSummary, pp *config.PhotoPrismConfig) {
	if len(summaries) == 0 {
		fmt.Println("No moments found.")
		return
	}
	fmt.Printf("Found %d moments:\n\n", len(summaries))
	for _, s := range summaries {
		title := s.Title
		if title == "" {
			title = "(unknown place)"
		}
		fmt.Printf("  %d  %-30s %s - %s  %4d items",
			s.Key, title, s.Start.Format("2006-01-02 15:04"), s.End.Format("15:04"), s.Count)
		switch {
		case s.SaveError != "":
			fmt.Printf("  save failed: %s", s.SaveError)
		case s.Album != "":
			fmt.Printf("  -> %q", s.Album)
		}
		fmt.Println()
		if link := pp.PhotoURL(s.Cover); link != "" {
			fmt.Printf("      cover %s\n", link)
		}
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}
