// Package main implements the researchrun CLI: a thin cobra command tree
// wrapping the tool-call surface (init/tick/status/lock-wait), matching
// codenerd/cmd/nerd's cobra-based command tree without the chat/shard/
// mangle-LSP surface that has nothing in this domain to drive it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"researchrun/internal/config"
	"researchrun/internal/gatesdoc"
	"researchrun/internal/logging"
	"researchrun/internal/manifest"
	"researchrun/internal/metrics"
	"researchrun/internal/model"
	"researchrun/internal/orchestrator"
	"researchrun/internal/retry"
	"researchrun/internal/runagent"
	"researchrun/internal/runlock"
	"researchrun/internal/store"
	"researchrun/internal/toolsurface"
)

var (
	debug        bool
	settingsPath string
	cfg          *config.Config
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "researchrun",
		Short: "researchrun - deterministic multi-agent deep-research orchestrator",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Init(debug); err != nil {
				return err
			}
			loaded, err := config.Load(settingsPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	root.PersistentFlags().StringVar(&settingsPath, "settings", "", "path to settings.json (defaults layered under PAI_DR_* env)")

	root.AddCommand(runInitCmd(), runTickCmd(), runStatusCmd(), runLockWaitCmd(), metricsServeCmd())
	return root
}

func emit(v interface{}) {
	env := toolsurface.Envelope{OK: true, Result: v}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(data))
}

func emitErr(err error) error {
	env := toolsurface.Envelope{OK: false, Error: toolsurface.AsToolError(err)}
	data, _ := json.MarshalIndent(env, "", "  ")
	fmt.Println(string(data))
	return err
}

func runInitCmd() *cobra.Command {
	var (
		query       string
		sensitivity string
		mode        string
		runsRoot    string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "create a new run directory with a seeded manifest, gates document, scope, and empty perspectives list",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				return emitErr(toolsurface.NewError(toolsurface.CodeInvalidArgs, "--query is required", nil))
			}
			if runsRoot == "" {
				runsRoot = cfg.RunsRoot
			}
			if mode == "" {
				mode = cfg.ModeDefault
			}
			if sensitivity == "" {
				sensitivity = string(model.SensitivityNormal)
			}
			if cfg.NoWeb {
				sensitivity = string(model.SensitivityNoWeb)
			}

			runID := "run_" + uuid.NewString()
			runRoot := filepath.Join(runsRoot, runID)
			artifacts := model.Artifacts{
				Root: runRoot,
				Paths: model.ArtifactPaths{
					Manifest:     "manifest.json",
					Gates:        "gates.json",
					Perspectives: "perspectives.json",
					Scope:        "operator/scope.json",
					Pivot:        "pivot/pivot.json",
					Wave1Dir:     "wave-1",
					Wave2Dir:     "wave-2",
					CitationsDir: "citations",
					SummariesDir: "summaries",
					SynthesisDir: "synthesis",
					ReviewDir:    "review",
					RetryDir:     "retry",
					LogsDir:      "logs",
				},
			}
			paths := orchestrator.NewPaths(runRoot, artifacts)
			if err := store.EnsureDir(runRoot); err != nil {
				return emitErr(err)
			}

			now := time.Now().UTC()
			m := &model.Manifest{
				SchemaVersion: "manifest.v1",
				RunID:         runID,
				CreatedAt:     now,
				Artifacts:     artifacts,
				Revision:      1,
				UpdatedAt:     now,
				Mode:          model.Mode(mode),
				Status:        model.StatusCreated,
				Query: model.Query{
					Text:        query,
					Sensitivity: model.Sensitivity(sensitivity),
				},
				Stage: model.StageBlock{
					Current:   model.StageInit,
					StartedAt: now,
					History:   []model.StageHistoryEntry{},
				},
				Limits: model.Limits{
					MaxWave1Agents:      cfg.MaxWave1Agents,
					MaxWave2Agents:      cfg.MaxWave2Agents,
					MaxSummaryKB:        cfg.MaxSummaryKB,
					MaxTotalSummaryKB:   cfg.MaxTotalSummaryKB,
					MaxReviewIterations: cfg.MaxReviewIterations,
				},
			}
			if err := store.WriteJSONAtomic(paths.Manifest, m); err != nil {
				return emitErr(err)
			}
			if err := store.WriteJSONAtomic(paths.Gates, model.NewGatesDocument(runID)); err != nil {
				return emitErr(err)
			}
			if err := store.WriteJSONAtomic(paths.Scope, &model.ScopeDocument{}); err != nil {
				return emitErr(err)
			}
			if err := store.WriteJSONAtomic(paths.Perspectives, &model.PerspectivesDocument{}); err != nil {
				return emitErr(err)
			}

			emit(map[string]interface{}{"run_id": runID, "run_root": runRoot})
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "the research query text")
	cmd.Flags().StringVar(&sensitivity, "sensitivity", "", "normal, restricted, or no_web")
	cmd.Flags().StringVar(&mode, "mode", "", "quick, standard, or deep")
	cmd.Flags().StringVar(&runsRoot, "runs-root", "", "parent directory for the new run (defaults to config runs_root)")
	return cmd
}

func runTickCmd() *cobra.Command {
	var fixturesDir string
	cmd := &cobra.Command{
		Use:   "tick <run-root>",
		Short: "drive one phase's tick loop (pre-pivot, post-pivot, or post-summaries) to its next boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runRoot := args[0]
			m, paths, err := loadRun(runRoot)
			if err != nil {
				return emitErr(err)
			}

			driver := fixtureDriver(fixturesDir)
			ctx := context.Background()
			var outcomes []orchestrator.TickOutcome
			switch {
			case m.Stage.Current == model.StageInit || m.Stage.Current == model.StageWave1:
				outcomes, err = orchestrator.RunPrePivot(ctx, &orchestrator.PrePivot{Paths: paths, Driver: driver, Retries: retry.NewTracker(0)})
			case m.Stage.Current == model.StagePivot || m.Stage.Current == model.StageWave2 || m.Stage.Current == model.StageCitations:
				outcomes, err = orchestrator.RunPostPivot(ctx, &orchestrator.PostPivot{Paths: paths, Driver: driver})
			case m.Stage.Current == model.StageSummaries || m.Stage.Current == model.StageSynthesis || m.Stage.Current == model.StageReview:
				outcomes, err = orchestrator.RunPostSummaries(ctx, &orchestrator.PostSummaries{Paths: paths})
			default:
				emit(map[string]interface{}{"stage": m.Stage.Current, "outcomes": []orchestrator.TickOutcome{}})
				return nil
			}
			if err != nil {
				return emitErr(err)
			}
			emit(map[string]interface{}{"outcomes": outcomes})
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturesDir, "fixtures", "", "directory of <perspective_id>.md files to seed an offline runAgent driver")
	return cmd
}

func runStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run-root>",
		Short: "report a run's manifest stage/status and lock state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runRoot := args[0]
			m, _, err := loadRun(runRoot)
			if err != nil {
				return emitErr(err)
			}
			locked, holder, err := runlock.Status(runRoot)
			if err != nil {
				return emitErr(err)
			}
			result := map[string]interface{}{
				"run_id":   m.RunID,
				"mode":     m.Mode,
				"status":   m.Status,
				"stage":    m.Stage.Current,
				"revision": m.Revision,
				"locked":   locked,
			}
			if holder != nil {
				result["lock_holder_id"] = holder.HolderID
				result["lease_expires_at"] = holder.LeaseExpiresAt
			}
			emit(result)
			return nil
		},
	}
	return cmd
}

func runLockWaitCmd() *cobra.Command {
	var timeoutSeconds int
	cmd := &cobra.Command{
		Use:   "lock-wait <run-root>",
		Short: "block until a run's lock is released or its lease expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unlocked, err := runlock.Wait(args[0], time.Duration(timeoutSeconds)*time.Second)
			if err != nil {
				return emitErr(err)
			}
			emit(map[string]interface{}{"unlocked": unlocked})
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 30, "seconds to wait before giving up")
	return cmd
}

func metricsServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "metrics-serve",
		Short: "serve the orchestrator's Prometheus metrics over HTTP until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address")
	return cmd
}

func loadRun(runRoot string) (*model.Manifest, orchestrator.Paths, error) {
	manifestPath := filepath.Join(runRoot, "manifest.json")
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, orchestrator.Paths{}, err
	}
	if _, err := gatesdoc.Load(filepath.Join(runRoot, m.Artifacts.Paths.Gates)); err != nil {
		return nil, orchestrator.Paths{}, err
	}
	return m, orchestrator.NewPaths(runRoot, m.Artifacts), nil
}

// fixtureDriver builds an offline runAgent driver from a directory of
// <perspective_id>.md files, or an always-failing driver if none is
// given — a live model driver is outside this system's scope (spec.md's
// runAgent collaborator boundary).
func fixtureDriver(dir string) runagent.Driver {
	fixtures := map[string]string{}
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				name := e.Name()
				ext := filepath.Ext(name)
				if ext != ".md" {
					continue
				}
				data, err := os.ReadFile(filepath.Join(dir, name))
				if err != nil {
					continue
				}
				fixtures[name[:len(name)-len(ext)]] = string(data)
			}
		}
	}
	return runagent.NewFixtureDriver(fixtures)
}
