package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/selectstar/dbt-impact-report-action/internal/catalog"
	"github.com/selectstar/dbt-impact-report-action/internal/impact"
	"github.com/selectstar/dbt-impact-report-action/internal/lineage"
	"github.com/selectstar/dbt-impact-report-action/internal/logger"
	"github.com/selectstar/dbt-impact-report-action/internal/model"
	"github.com/selectstar/dbt-impact-report-action/internal/output"
	"github.com/selectstar/dbt-impact-report-action/internal/render"
	"github.com/selectstar/dbt-impact-report-action/internal/scm"
)

// runResult is the JSON output structure for the run command.
type runResult struct {
	RunID       string                `json:"run_id"`
	Provider    string                `json:"provider"`
	DryRun      bool                  `json:"dry_run"`
	Models      []*model.ChangedModel `json:"models"`
	Stats       lineage.Stats         `json:"stats"`
	TotalImpact int                   `json:"total_impact"`
	Comment     *scm.Comment          `json:"comment,omitempty"`
	Report      string                `json:"report,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the impact report and post it on the pull request",
		Args:  cobra.NoArgs,
		RunE:  runReport,
	}

	f := cmd.Flags()
	f.String("selectstar-api-url", "", "Select Star API base URL")
	f.String("selectstar-web-url", "", "Select Star web app URL used for report links")
	f.String("selectstar-api-token", "", "Select Star API token")
	f.String("selectstar-datasource-guid", "", "Select Star dbt data source GUID")
	f.String("git-provider", "", "Source control provider: github or bitbucket")
	f.String("git-ci", "", "Read the pull request from the CI event (anything but \"false\")")
	f.String("git-repository", "", "Repository as owner/name")
	f.String("git-repository-token", "", "Token for the source control API")
	f.String("pull-request-id", "", "Pull request number")
	f.String("git-api-url", "", "Source control API base URL (GitHub Enterprise, Bitbucket Server proxy)")
	f.String("model-path-pattern", "", "Regular expression selecting dbt model files")
	f.Bool("dry-run", false, "Print the report instead of posting it")
	f.Bool("raw-counts", false, "Count downstream objects without deduplication")

	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	w := getWriter(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	rawCounts, _ := cmd.Flags().GetBool("raw-counts")
	verbose, _ := cmd.Flags().GetBool("verbose")

	runID := uuid.NewString()
	log := logger.New(logger.Config{
		Debug:  verbose,
		Quiet:  w.QuietMode,
		JSON:   w.JSONMode,
		Output: cmd.ErrOrStderr(),
		RunID:  runID,
	})
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()

	provider, err := scm.New(cfg, scm.WithLogger(log.Named("scm")))
	if err != nil {
		return cmdErr(err, output.ErrValidation)
	}

	models, err := provider.ChangedModels(ctx)
	if err != nil {
		return cmdErr(fmt.Errorf("listing changed models: %w", err), classify(err))
	}

	result := runResult{
		RunID:    runID,
		Provider: provider.Name(),
		DryRun:   dryRun,
		Models:   models,
	}

	if len(models) == 0 {
		log.Info("no changed dbt models, skipping impact report")
		result.Models = []*model.ChangedModel{}
		w.Success(result, render.EmptyState("No changed dbt models.", "Nothing to report on this pull request.", w.QuietMode))
		return nil
	}

	client := catalog.NewClient(cfg.SelectStarAPIURL, cfg.SelectStarAPIToken, cfg.SelectStarDatasourceGUID,
		catalog.WithLogger(log.Named("catalog")))
	resolver := lineage.NewResolver(client, lineage.WithLogger(log.Named("lineage")))
	if err := resolver.Resolve(ctx, models); err != nil {
		return cmdErr(fmt.Errorf("resolving lineage: %w", err), classify(err))
	}
	impact.MergeAll(models)

	reporter := render.NewReporter(cfg.SelectStarWebURL, render.WithDeduplicated(!rawCounts))
	report := reporter.Report(models)

	result.Stats = resolver.Stats()
	result.TotalImpact = reporter.Total(models)
	w.Info("Found %d changed dbt models, %d not found in catalog", result.Stats.Models, result.Stats.Unresolved)
	if result.Stats.DroppedMappings > 0 {
		w.Info("Dropped %d warehouse mappings to missing tables", result.Stats.DroppedMappings)
	}
	log.Info("impact computed",
		zap.Int("models", len(models)),
		zap.Int("unresolved", result.Stats.Unresolved),
		zap.Int("total_impact", result.TotalImpact),
		zap.Bool("raw_counts", rawCounts),
	)

	if !w.JSONMode && !w.QuietMode {
		fmt.Fprintln(w.Stderr, render.Summary(models, reporter))
	}

	if dryRun {
		result.Report = report
		if w.JSONMode {
			w.Success(result, "")
			return nil
		}
		preview, err := render.RenderPreview(report)
		if err != nil {
			w.Warn("rendering report preview: %v", err)
		}
		w.Success(result, preview)
		return nil
	}

	comment, err := provider.UpsertReport(ctx, report)
	if err != nil {
		return cmdErr(fmt.Errorf("posting impact report: %w", err), classify(err))
	}
	result.Comment = comment

	w.Success(result, commentMessage(comment))
	return nil
}

func commentMessage(c *scm.Comment) string {
	verb := "updated"
	if c.Created {
		verb = "created"
	}
	if c.URL == "" {
		return fmt.Sprintf("Impact report %s (comment %s)", verb, c.ID)
	}
	return fmt.Sprintf("Impact report %s: %s", verb, c.URL)
}
