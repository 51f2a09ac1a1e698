package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/memoryos/internal/glyph"
	"github.com/antigravity-dev/memoryos/internal/retrieval"
)

func init() {
	rootCmd.AddCommand(initCmd, migrateCmd, syncCmd, statusCmd, queryCmd, writeCmd,
		embedCmd, semanticCmd, topicIndexCmd, renderCmd, consolidateCmd, pruneCmd,
		healthCmd, recentCmd)
}

// parseFilterFlags turns repeated "key=value" --filter flags into the raw
// map retrieval.ParseFilters expects.
func parseFilterFlags(raw []string) (retrieval.Filters, error) {
	m := make(map[string]string, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return retrieval.Filters{}, fmt.Errorf("invalid --filter %q, want key=value", kv)
		}
		m[parts[0]] = parts[1]
	}
	return retrieval.ParseFilters(m)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create (or migrate in place) the glyph store at general.state_db",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			fmt.Printf("glyph store ready at %s\n", a.cfg.General.StateDB)
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply additive schema migrations to the glyph store",
	RunE: func(cmd *cobra.Command, args []string) error {
		// glyph.Open runs migrate() on every open, so opening the store via
		// withApp is itself the migration step.
		return withApp(func(a *app) error {
			fmt.Println("schema is up to date")
			return nil
		})
	},
}

var syncSource string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay a mirror log into the glyph store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			n, err := a.store.Sync(syncSource)
			if err != nil {
				return err
			}
			fmt.Printf("synced %d glyph(s) from %s\n", n, syncSource)
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncSource, "source", "", "mirror log path to replay (required)")
	syncCmd.MarkFlagRequired("source")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print store counts, freshness, and sync-lag summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			report, err := a.store.Status()
			if err != nil {
				return err
			}
			fmt.Printf("active glyphs: %d (embedded: %d)\n", report.TotalActive, report.EmbeddedActive)
			for typ, n := range report.CountsByType {
				fmt.Printf("  %-10s %d\n", typ, n)
			}
			fmt.Println("top topics:")
			for _, t := range report.TopTopics {
				fmt.Printf("  %-20s %d\n", t.Topic, t.Count)
			}
			fmt.Printf("freshness: <1h=%d <1d=%d <1w=%d >1w=%d\n",
				report.FreshnessBuckets.UnderOneHour, report.FreshnessBuckets.UnderOneDay,
				report.FreshnessBuckets.UnderOneWeek, report.FreshnessBuckets.OlderThanWeek)
			for src, lag := range report.SyncLag {
				fmt.Printf("sync lag[%s]: %d\n", src, lag)
			}
			return nil
		})
	},
}

var (
	queryFilters []string
	queryLimit   int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "List glyphs matching --filter key=value pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := parseFilterFlags(queryFilters)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			glyphs, err := a.engine.Query(f, queryLimit)
			if err != nil {
				return err
			}
			for _, g := range glyphs {
				fmt.Printf("[%d] %-10s %-15s %s\n", g.ID, g.Type, g.Topic, g.Text)
			}
			fmt.Printf("%d result(s)\n", len(glyphs))
			return nil
		})
	},
}

func init() {
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "key=value filter, repeatable")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 50, "maximum results")
}

var (
	writeType       string
	writeTopic      string
	writeText       string
	writeImportance string
	writeChoice     string
	writeProject    string
	writeTaskID     string
	writeSource     string
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Append a new glyph directly to the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			id, err := a.store.Append(glyph.NewGlyphFields{
				Type: writeType, Topic: writeTopic, Text: writeText,
				Importance: writeImportance, Choice: writeChoice,
				Project: writeProject, TaskID: writeTaskID, Source: writeSource,
			})
			if err != nil {
				return err
			}
			fmt.Printf("wrote glyph %d\n", id)
			return nil
		})
	},
}

func init() {
	writeCmd.Flags().StringVar(&writeType, "type", "", "glyph type (required)")
	writeCmd.Flags().StringVar(&writeTopic, "topic", "", "topic")
	writeCmd.Flags().StringVar(&writeText, "text", "", "body text (required)")
	writeCmd.Flags().StringVar(&writeImportance, "importance", "M", "H, M, or L")
	writeCmd.Flags().StringVar(&writeChoice, "choice", "", "choice/status value")
	writeCmd.Flags().StringVar(&writeProject, "project", "", "project scope")
	writeCmd.Flags().StringVar(&writeTaskID, "task-id", "", "associated task id")
	writeCmd.Flags().StringVar(&writeSource, "source", "memoryosctl", "write source tag")
	writeCmd.MarkFlagRequired("type")
	writeCmd.MarkFlagRequired("text")
}

var (
	embedFilters []string
	embedForce   bool
	embedDryRun  bool
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Generate embeddings for glyphs lacking one",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := parseFilterFlags(embedFilters)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			res, err := a.engine.Embed(context.Background(), f, embedForce, embedDryRun)
			if err != nil {
				return err
			}
			fmt.Printf("candidates=%d embedded=%d failed=%d dry_run=%v\n",
				res.Candidates, res.Embedded, res.Failed, res.DryRun)
			return nil
		})
	},
}

func init() {
	embedCmd.Flags().StringArrayVar(&embedFilters, "filter", nil, "key=value filter, repeatable")
	embedCmd.Flags().BoolVar(&embedForce, "force", false, "re-embed even glyphs that already have a vector")
	embedCmd.Flags().BoolVar(&embedDryRun, "dry-run", false, "report counts without writing")
}

var (
	semanticFilters []string
	semanticLimit   int
	semanticTau     float64
	semanticBeta    float64
	semanticAlpha   float64
)

var semanticCmd = &cobra.Command{
	Use:   "semantic [query text]",
	Short: "Rank active glyphs by hybrid semantic/recency/keyword score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := parseFilterFlags(semanticFilters)
		if err != nil {
			return err
		}
		params := retrieval.SearchParams{TauDays: semanticTau, Beta: semanticBeta, Alpha: semanticAlpha}
		return withApp(func(a *app) error {
			scored, err := a.engine.SemanticSearch(args[0], f, semanticLimit, params)
			if err != nil {
				return err
			}
			for _, s := range scored {
				fmt.Printf("%.4f [%d] %-15s %s\n", s.Score, s.Glyph.ID, s.Glyph.Topic, s.Glyph.Text)
			}
			return nil
		})
	},
}

func init() {
	def := retrieval.DefaultSearchParams()
	semanticCmd.Flags().StringArrayVar(&semanticFilters, "filter", nil, "key=value filter, repeatable")
	semanticCmd.Flags().IntVar(&semanticLimit, "limit", 10, "maximum results")
	semanticCmd.Flags().Float64Var(&semanticTau, "tau-days", def.TauDays, "recency decay time constant in days (score scales by exp(-age/tau))")
	semanticCmd.Flags().Float64Var(&semanticBeta, "beta", def.Beta, "keyword-overlap boost weight")
	semanticCmd.Flags().Float64Var(&semanticAlpha, "alpha", def.Alpha, "deprecation penalty weight")
}

var topicIndexDryRun bool

var topicIndexCmd = &cobra.Command{
	Use:   "topic-index",
	Short: "Rebuild per-topic mean embedding vectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			res, err := a.engine.TopicIndexBuild(topicIndexDryRun)
			if err != nil {
				return err
			}
			fmt.Printf("topics considered=%d updated=%d dry_run=%v\n",
				res.TopicsConsidered, res.TopicsUpdated, res.DryRun)
			return nil
		})
	},
}

func init() {
	topicIndexCmd.Flags().BoolVar(&topicIndexDryRun, "dry-run", false, "report counts without writing")
}

var (
	renderFilters []string
	renderLimit   int
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render matching glyphs as prompt-ready lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := parseFilterFlags(renderFilters)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			lines, err := a.engine.Render(f, renderLimit)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Println(l)
			}
			return nil
		})
	},
}

func init() {
	renderCmd.Flags().StringArrayVar(&renderFilters, "filter", nil, "key=value filter, repeatable")
	renderCmd.Flags().IntVar(&renderLimit, "limit", 50, "maximum lines")
}

var (
	consolidateFilters []string
	consolidateDryRun  bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge near-duplicate glyphs within scope into one superseding glyph",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := parseFilterFlags(consolidateFilters)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			res, err := a.engine.Consolidate(f, consolidateDryRun)
			if err != nil {
				return err
			}
			fmt.Printf("clusters=%d superseded=%d new_glyphs=%v dry_run=%v\n",
				res.ClustersFound, res.GlyphsSuperseded, res.ConsolidatedGlyph, res.DryRun)
			return nil
		})
	},
}

func init() {
	consolidateCmd.Flags().StringArrayVar(&consolidateFilters, "filter", nil, "key=value filter, repeatable")
	consolidateCmd.Flags().BoolVar(&consolidateDryRun, "dry-run", false, "report counts without writing")
}

var (
	pruneHorizon string
	pruneDryRun  bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete superseded/deprecated glyphs past a retention horizon",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := time.ParseDuration(pruneHorizon)
		if err != nil {
			return fmt.Errorf("invalid --horizon: %w", err)
		}
		return withApp(func(a *app) error {
			res, err := a.store.Prune(d, pruneDryRun)
			if err != nil {
				return err
			}
			fmt.Printf("candidates=%d deleted=%d\n", res.Candidates, res.Deleted)
			return nil
		})
	},
}

func init() {
	pruneCmd.Flags().StringVar(&pruneHorizon, "horizon", "720h", "retention horizon, e.g. 720h for 30 days")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "report counts without deleting")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Traffic-light summary of store freshness, embedding coverage, and sync lag",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			report, err := a.store.Status()
			if err != nil {
				return err
			}
			band, reasons := healthBand(report)
			fmt.Printf("status: %s\n", band)
			for _, r := range reasons {
				fmt.Printf("  - %s\n", r)
			}
			return nil
		})
	},
}

// healthBand derives a healthy/degraded/unhealthy verdict from the
// embedding-coverage and sync-lag counters of glyph.StatusReport.
func healthBand(report glyph.StatusReport) (string, []string) {
	var reasons []string
	band := "healthy"

	if report.TotalActive > 0 {
		coverage := float64(report.EmbeddedActive) / float64(report.TotalActive)
		if coverage < 0.5 {
			band = "unhealthy"
			reasons = append(reasons, fmt.Sprintf("embedding coverage %.0f%% below 50%%", coverage*100))
		} else if coverage < 0.8 {
			if band == "healthy" {
				band = "degraded"
			}
			reasons = append(reasons, fmt.Sprintf("embedding coverage %.0f%% below 80%%", coverage*100))
		}
	}

	for source, lag := range report.SyncLag {
		if lag > 1000 {
			band = "unhealthy"
			reasons = append(reasons, fmt.Sprintf("sync lag[%s]=%d lines behind", source, lag))
		} else if lag > 100 {
			if band == "healthy" {
				band = "degraded"
			}
			reasons = append(reasons, fmt.Sprintf("sync lag[%s]=%d lines behind", source, lag))
		}
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "no freshness, coverage, or sync-lag concerns")
	}
	return band, reasons
}

var (
	recentWindow string
	recentLimit  int
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Shorthand for 'query --filter recent=<window>'",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := parseFilterFlags([]string{"recent=" + recentWindow})
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			glyphs, err := a.engine.Query(f, recentLimit)
			if err != nil {
				return err
			}
			for _, g := range glyphs {
				fmt.Printf("[%d] %-10s %-15s %s\n", g.ID, g.Type, g.Topic, g.Text)
			}
			fmt.Printf("%d result(s) in the last %s\n", len(glyphs), recentWindow)
			return nil
		})
	},
}

func init() {
	recentCmd.Flags().StringVar(&recentWindow, "window", "24h", `recency token, e.g. "24h", "7d"`)
	recentCmd.Flags().IntVar(&recentLimit, "limit", 50, "maximum results")
}
