// Command jobtrail is the operator CLI (spec §6 CLI surface): queue,
// batch, status, drift, classify, log-call, sync, versions, alerts. Exit
// codes follow domain.ExitCode so shell scripting can distinguish
// invalid invocation from transient- and permanent-store failures.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/internal/bootstrap"
	"github.com/kazimov/jobtrail/internal/config"
	"github.com/kazimov/jobtrail/internal/platform/docgen"
	"github.com/kazimov/jobtrail/internal/platform/pdftext"
	"github.com/kazimov/jobtrail/internal/platform/sentryreport"
	"github.com/kazimov/jobtrail/ports"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "jobtrail",
		Short:         "Self-improving job-application pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		queueCmd(cfg),
		batchCmd(cfg),
		statusCmd(cfg),
		driftCmd(cfg),
		classifyCmd(cfg),
		logCallCmd(cfg),
		syncCmd(cfg),
		versionsCmd(cfg),
		alertsCmd(cfg),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		sentryreport.Report(err, map[string]string{"surface": "cli"})
		sentryreport.Flush(2 * time.Second)
		os.Exit(domain.ExitCode(err))
	}
}

func alignmentsFor(ctx context.Context, store ports.Store) map[domain.Archetype]float64 {
	alignments := make(map[domain.Archetype]float64, len(domain.Archetypes))
	for _, arch := range domain.Archetypes {
		v, err := store.GetResumeVariant(ctx, arch)
		if err != nil {
			continue
		}
		alignments[arch] = v.AlignmentScore
	}
	return alignments
}

func queueCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List per-archetype queue counts and top-score averages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			alignments := alignmentsFor(ctx, c.Store)
			if err := c.Coordinator.RebuildQueue(ctx, c.SelectorCfg, alignments); err != nil {
				return err
			}
			summary := c.Coordinator.ListQueue()

			for _, arch := range domain.Archetypes {
				stats := summary.PerArchetype[arch]
				fmt.Printf("%-12s count=%-4d avg_top_score=%.3f\n", arch, stats.Count, stats.AvgTopScore)
			}
			fmt.Printf("intelligence_only=%d\n", summary.IntelligenceOnly)
			return nil
		},
	}
}

func batchCmd(cfg *config.Config) *cobra.Command {
	var action string
	var batchID string
	var profile string

	cmd := &cobra.Command{
		Use:   "batch <archetype>",
		Short: "Open, emit into, or close a batch under the shared-profile invariant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arch := domain.Archetype(args[0])
			if !arch.Valid() {
				return fmt.Errorf("%w: unknown archetype %q", domain.ErrValidation, args[0])
			}

			ctx := cmd.Context()
			c, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			switch action {
			case "open":
				profileState := arch
				if profile != "" {
					profileState = domain.Archetype(profile)
				}
				b, err := c.Coordinator.OpenBatch(ctx, arch, profileState)
				if err != nil {
					return err
				}
				fmt.Printf("opened batch %s for %s\n", b.ID, arch)
			case "emit":
				b, err := c.Store.GetOpenBatch(ctx)
				if err != nil {
					return err
				}
				if b.Archetype != arch {
					return fmt.Errorf("%w: open batch is for %s, not %s", domain.ErrValidation, b.Archetype, arch)
				}
				variant, err := c.Store.GetResumeVariant(ctx, arch)
				if err != nil {
					return err
				}
				alignments := alignmentsFor(ctx, c.Store)
				if err := c.Coordinator.RebuildQueue(ctx, c.SelectorCfg, alignments); err != nil {
					return err
				}
				results, err := c.Coordinator.Emit(ctx, b, variant)
				if err != nil {
					return err
				}
				for _, r := range results {
					if r.Application == nil {
						fmt.Printf("error=%v\n", r.Err)
						continue
					}
					if r.Err != nil {
						fmt.Printf("listing=%s submitted=%v error=%v\n", r.Application.ListingID, r.Submitted, r.Err)
						continue
					}
					fmt.Printf("listing=%s application=%s submitted=%v\n", r.Application.ListingID, r.Application.ID, r.Submitted)
				}
			case "close":
				if batchID == "" {
					b, err := c.Store.GetOpenBatch(ctx)
					if err != nil {
						return err
					}
					batchID = b.ID
				}
				if err := c.Coordinator.CloseBatch(ctx, batchID); err != nil {
					return err
				}
				fmt.Printf("closed batch %s\n", batchID)
			default:
				return fmt.Errorf("%w: --action must be one of open, emit, close", domain.ErrValidation)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "open", "open, emit, or close")
	cmd.Flags().StringVar(&batchID, "batch", "", "batch id to close (defaults to the open batch; emit always uses the open batch)")
	cmd.Flags().StringVar(&profile, "profile", "", "external profile archetype asserted by the operator (defaults to the batch archetype)")
	return cmd
}

func statusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Funnel metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			counts, err := c.Store.FunnelCounts(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("total_listings=%d intelligence_only=%d queued=%d total_applications=%d manual_review_messages=%d\n",
				counts.TotalListings, counts.IntelligenceOnly, counts.Queued, counts.TotalApplications, counts.ManualReviewMessages)
			stages := make([]string, 0, len(counts.ByOutcome))
			for stage := range counts.ByOutcome {
				stages = append(stages, string(stage))
			}
			sort.Strings(stages)
			for _, s := range stages {
				fmt.Printf("  %-12s %d\n", s, counts.ByOutcome[domain.OutcomeStage(s)])
			}
			return nil
		},
	}
}

func driftCmd(cfg *config.Config) *cobra.Command {
	var reportPath string
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Latest centroid shifts and résumé staleness distances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			for _, arch := range domain.Archetypes {
				latest, err := c.Store.GetLatestCentroid(ctx, arch)
				if err != nil {
					fmt.Printf("%-12s no centroid yet\n", arch)
					continue
				}
				fmt.Printf("%-12s shift_from_prev=%.4f jd_count=%d window=[%s, %s]\n",
					arch, latest.ShiftFromPrev, latest.JDCount,
					latest.WindowStart.Format("2006-01-02"), latest.WindowEnd.Format("2006-01-02"))

				variant, err := c.Store.GetResumeVariant(ctx, arch)
				if err == nil {
					fmt.Printf("             staleness=%.4f current_version=%s\n", variant.Staleness(), variant.CurrentVersionID)
				}

				report, err := c.Rewrite.EvaluateRewrite(ctx, arch, time.Now())
				if err != nil {
					return err
				}
				if report != nil {
					fmt.Printf("             REWRITE TRIGGERED: %s\n", report.SuggestedFocus)
					if reportPath != "" {
						path := fmt.Sprintf("%s/%s-rewrite-report.docx", reportPath, arch)
						if err := docgen.RenderRewriteReport(report, path); err != nil {
							return fmt.Errorf("render rewrite report: %w", err)
						}
						fmt.Printf("             report written to %s\n", path)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reportPath, "report-dir", "", "directory to write a rewrite_triggered report as .docx")
	return cmd
}

func classifyCmd(cfg *config.Config) *cobra.Command {
	var roleType string
	cmd := &cobra.Command{
		Use:   "classify <file>",
		Short: "Return archetype weights for ad-hoc listing text (PDF or plain text)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			text, err := readListingText(args[0])
			if err != nil {
				return err
			}
			result, err := c.Classifier.Classify(ctx, text, domain.RoleType(roleType))
			if err != nil {
				return err
			}
			for _, arch := range domain.Archetypes {
				fmt.Printf("%-12s %.4f\n", arch, result.Scores[arch])
			}
			fmt.Printf("primary=%s\n", result.Primary)
			return nil
		},
	}
	cmd.Flags().StringVar(&roleType, "role-type", string(domain.RoleUnknown), "contract, permanent, or unknown")
	return cmd
}

func readListingText(path string) (string, error) {
	if len(path) >= 4 && path[len(path)-4:] == ".pdf" {
		return pdftext.ExtractText(path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read listing file: %w", err)
	}
	return string(raw), nil
}

func logCallCmd(cfg *config.Config) *cobra.Command {
	var phone, entity, title, outcome, notes string
	cmd := &cobra.Command{
		Use:   "log-call",
		Short: "Invoke the call-log intake and run it through the matcher cascade",
		RunE: func(cmd *cobra.Command, args []string) error {
			if phone == "" || entity == "" {
				return fmt.Errorf("%w: --phone and --entity are required", domain.ErrValidation)
			}
			ctx := cmd.Context()
			c, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			logEntry, err := c.Matcher.MatchCallLog(ctx, ports.CallLogEntry{
				Phone: phone, HiringEntity: entity, Title: title,
				Outcome: outcome, Notes: notes, CallDate: time.Now(),
			})
			if err != nil {
				return err
			}
			if logEntry.MatchedApplicationID != "" {
				fmt.Printf("matched application %s\n", logEntry.MatchedApplicationID)
			} else {
				fmt.Println("no matching open application found")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "caller phone number")
	cmd.Flags().StringVar(&entity, "entity", "", "hiring entity name")
	cmd.Flags().StringVar(&title, "title", "", "role title mentioned on the call")
	cmd.Flags().StringVar(&outcome, "outcome", "", "free-text outcome description")
	cmd.Flags().StringVar(&notes, "notes", "", "call notes")
	return cmd
}

func syncCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Force a local-spool flush, inbox poll, centroid/drift sweep, and backup snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			// §6: "force local-spool flush when the core uses the
			// offline-buffered store" — Spooler is nil when STORE_BACKEND
			// isn't postgres, since there's then no server engine to flush
			// a spool toward.
			if c.Spooler != nil {
				flushed, err := c.Spooler.Flush(ctx)
				if err != nil {
					return fmt.Errorf("flush local spool: %w", err)
				}
				if flushed > 0 {
					fmt.Printf("flushed %d spooled write(s) to the server engine\n", flushed)
				} else {
					fmt.Println("local spool empty, nothing to flush")
				}
			}

			if err := c.Scheduler.RunInboxPoll(ctx); err != nil {
				return err
			}
			if err := c.Scheduler.RunCentroidAndDrift(ctx); err != nil {
				return err
			}
			if err := c.Scheduler.RunBackup(ctx); err != nil {
				return err
			}
			fmt.Println("sync complete")
			return nil
		},
	}
}

func versionsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "Per-variant per-version-identifier outcome metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			for _, arch := range domain.Archetypes {
				apps, err := c.Store.ListApplicationsByArchetype(ctx, arch)
				if err != nil {
					return err
				}
				if len(apps) == 0 {
					continue
				}
				byVersion := map[string]map[domain.OutcomeStage]int{}
				for _, a := range apps {
					if byVersion[a.VersionIdentifier] == nil {
						byVersion[a.VersionIdentifier] = map[domain.OutcomeStage]int{}
					}
					byVersion[a.VersionIdentifier][a.Outcome]++
				}
				versions := make([]string, 0, len(byVersion))
				for v := range byVersion {
					versions = append(versions, v)
				}
				sort.Strings(versions)
				fmt.Printf("%s:\n", arch)
				for _, v := range versions {
					fmt.Printf("  %s", v)
					for stage, n := range byVersion[v] {
						fmt.Printf(" %s=%d", stage, n)
					}
					fmt.Println()
				}
			}
			return nil
		},
	}
}

func alertsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Unacknowledged alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			list, err := c.Store.ListUnacknowledgedAlerts(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("no unacknowledged alerts")
				return nil
			}
			for _, a := range list {
				fmt.Printf("%-20s %-12s %-18s value=%.4f threshold=%.4f created=%s\n",
					a.ID, a.Archetype, a.Kind, a.MetricValue, a.Threshold, a.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
