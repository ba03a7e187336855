package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/swift/internal/config"
	"github.com/TobiSchelling/swift/internal/export"
	"github.com/TobiSchelling/swift/internal/ingest"
	"github.com/TobiSchelling/swift/internal/model"
	"github.com/TobiSchelling/swift/internal/pipeline"
)

var (
	runInput       string
	runLimit       int
	runStrictness  string
	runCriteria    string
	runMaxTokens   int
	runConcurrency int
	runOutputDir   string
	runFormats     []string
	runLanguage    string
	runNoGrounding bool
	runDryRun      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Judge the ideas in a CSV or XLSX file and export the results",
	Example: `  swift run --input ideas.csv --limit 20 --strictness strict
  swift run -i ideas.xlsx --export csv,xlsx,html --criteria "must target households"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		table, err := ingest.ReadFile(runInput)
		if err != nil {
			return err
		}
		limit := cfg.Pipeline.Limit

		if runDryRun {
			return printPlan(cfg, table.Ideas, limit)
		}

		pipe, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		evalCfg := cfg.EvaluationConfig()
		fmt.Printf("Judging up to %d of %d ideas (%s filter)...\n", limit, len(table.Ideas), evalCfg.Strictness)
		result, err := pipe.Run(ctx, table.Ideas, evalCfg, limit)
		if err != nil {
			return err
		}
		printSummary(result)

		written, err := export.WriteAll(result, export.Options{
			Dir:        cfg.GetOutputDir(),
			Formats:    cfg.Output.Formats,
			Header:     table.Header,
			Ideas:      table.Ideas,
			Evaluation: evalCfg,
		})
		if err != nil {
			return err
		}
		if len(written) > 0 {
			fmt.Println("\nWritten:")
			for _, p := range written {
				fmt.Printf("  %s\n", p)
			}
		}
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runInput, "input", "i", "", "Idea table (.csv or .xlsx) with problem and solution columns")
	f.IntVarP(&runLimit, "limit", "n", 0, "Maximum number of ideas to judge (rows without problem text do not count)")
	f.StringVarP(&runStrictness, "strictness", "s", "", "Filter strictness: loose, normal or strict")
	f.StringVar(&runCriteria, "criteria", "", "Additional evaluation criteria")
	f.IntVar(&runMaxTokens, "max-tokens", 0, "Maximum answer length in tokens (1-1000)")
	f.IntVar(&runConcurrency, "concurrency", 0, "Ideas judged in parallel")
	f.StringVarP(&runOutputDir, "output-dir", "o", "", "Directory for exported results")
	f.StringSliceVar(&runFormats, "export", nil, "Export formats: "+strings.Join(export.AllFormats, ", "))
	f.StringVar(&runLanguage, "language", "", "Answer language (ISO 639-1); detected from the idea when empty")
	f.BoolVar(&runNoGrounding, "no-grounding", false, "Judge without web search context")
	f.BoolVar(&runDryRun, "dry-run", false, "Show what would be done without calling any service")
	_ = runCmd.MarkFlagRequired("input")
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	changed := cmd.Flags().Changed
	if changed("limit") {
		c.Pipeline.Limit = runLimit
	}
	if changed("strictness") {
		c.Evaluation.Strictness = runStrictness
	}
	if changed("criteria") {
		c.Evaluation.Criteria = runCriteria
	}
	if changed("max-tokens") {
		c.Evaluation.MaxTokens = runMaxTokens
	}
	if changed("concurrency") {
		c.Pipeline.Concurrency = runConcurrency
	}
	if changed("output-dir") {
		c.Output.Dir = runOutputDir
	}
	if changed("export") {
		c.Output.Formats = runFormats
	}
	if changed("language") {
		c.Evaluation.Language = runLanguage
	}
	if runNoGrounding {
		c.Pipeline.Grounding = false
	}
}

func printPlan(c *config.Config, ideas []model.Idea, limit int) error {
	stages := pipeline.Stages{}
	if c.Pipeline.Grounding {
		fetcher, err := buildFetcher(c)
		if err != nil {
			return err
		}
		stages.Fetcher = fetcher
	}
	plan := pipeline.New(stages, pipelineOptions(c)).DryRun(ideas, limit)

	fmt.Println("Dry run (no requests sent):")
	fmt.Printf("  Rows in input:        %d\n", plan.Rows)
	fmt.Printf("  With problem text:    %d\n", plan.Valid)
	fmt.Printf("  Skipped (no problem): %d\n", plan.Skipped)
	fmt.Printf("  Selected (limit %d):  %d\n", limit, plan.Selected)
	fmt.Printf("  Web grounding:        %t\n", plan.Grounded)
	fmt.Printf("  Estimated API calls:  %d\n", plan.Calls)
	return nil
}

func printSummary(result *model.BatchResult) {
	keep := color.New(color.FgGreen, color.Bold).SprintFunc()
	filter := color.New(color.FgRed, color.Bold).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	fmt.Println()
	for _, it := range result.Items {
		label := keep("KEEP  ")
		if it.Verdict.Filtered() {
			label = filter("FILTER")
		}
		line := fmt.Sprintf("%s #%s %s", label, it.Idea.ID, truncate(it.Idea.Problem, 70))
		if it.Verdict.Score != nil {
			line += fmt.Sprintf(" (score %d)", *it.Verdict.Score)
		}
		if it.Verdict.Degraded {
			line += " " + warn("[not evaluated]")
		}
		fmt.Println(line)
	}

	kept, filtered, degraded := result.Counts()
	fmt.Printf("\nRun %s: %s kept, %s filtered", result.RunID, keep(kept), filter(filtered))
	if degraded > 0 {
		fmt.Printf(", %s could not be evaluated", warn(degraded))
	}
	if len(result.Skipped) > 0 {
		fmt.Printf(", %d rows skipped for missing problem text", len(result.Skipped))
	}
	fmt.Println()

	if len(result.Digest) > 0 {
		fmt.Println("\nTL;DR:")
		for _, d := range result.Digest {
			fmt.Printf("  - %s\n", d)
		}
	}
}

func truncate(s string, max int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max-3]) + "..."
}
