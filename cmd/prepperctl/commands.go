package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"proposal-prepper/internal/analyses"
	"proposal-prepper/internal/bootstrap"
	"proposal-prepper/internal/mockengine"
	"proposal-prepper/internal/results"
	"proposal-prepper/internal/shared/config"
)

type rootFlags struct {
	engineURL string
	mock      bool
	jsonOut   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "prepperctl",
		Short:         "Drive proposal compliance analyses from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.engineURL, "engine", "", "analysis engine base URL (overrides ENGINE_BASE_URL)")
	root.PersistentFlags().BoolVar(&flags.mock, "mock", false, "run against an in-process mock engine")
	root.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newAnalyzeCmd(flags),
		newStatusCmd(flags),
		newHealthCmd(flags),
		newMockEngineCmd(),
	)
	return root
}

// loadConfig applies CLI overrides on top of file and environment config.
func (f *rootFlags) loadConfig() config.Config {
	cfg := config.Load()
	cfg.DatabaseURL = ""
	if f.mock {
		cfg.Mode = config.ModeMock
	} else if strings.TrimSpace(f.engineURL) != "" {
		cfg.Mode = config.ModeReal
		cfg.Engine.BaseURL = strings.TrimSpace(f.engineURL)
	}
	return cfg
}

func newAnalyzeCmd(flags *rootFlags) *cobra.Command {
	var (
		proposalID string
		documentID string
		filePath   string
		frameworks []string
		wait       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Start an analysis and follow it until it completes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.Build(ctx, flags.loadConfig())
			if err != nil {
				return err
			}
			defer app.Close()

			req := analyses.AnalysisRequest{
				ProposalID: proposalID,
				DocumentID: documentID,
				Frameworks: frameworks,
			}
			if filePath != "" {
				f, err := os.Open(filePath)
				if err != nil {
					return fmt.Errorf("open %s: %w", filePath, err)
				}
				defer f.Close()
				info, err := f.Stat()
				if err != nil {
					return err
				}
				req.Upload = &analyses.UploadInput{
					Filename: info.Name(),
					Reader:   f,
					Size:     info.Size(),
					OnProgress: func(pct int) {
						if !flags.jsonOut {
							fmt.Fprintf(cmd.ErrOrStderr(), "upload %3d%%\n", pct)
						}
					},
				}
			}
			return followAnalysis(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), app.AnalysesService, req, wait, flags.jsonOut)
		},
	}
	cmd.Flags().StringVar(&proposalID, "proposal", "", "proposal identifier (required)")
	cmd.Flags().StringVar(&documentID, "document", "", "already uploaded document id")
	cmd.Flags().StringVar(&filePath, "file", "", "document to upload before analysis")
	cmd.Flags().StringSliceVar(&frameworks, "frameworks", nil, "frameworks to check (FAR, DFARS)")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Minute, "give up following after this long")
	_ = cmd.MarkFlagRequired("proposal")
	return cmd
}

type outcome struct {
	session analyses.Session
	report  *results.Report
	message string
	code    string
}

// followAnalysis starts an analysis and blocks until exactly one terminal
// callback arrives.
func followAnalysis(ctx context.Context, out, progress io.Writer, svc *analyses.Service, req analyses.AnalysisRequest, wait time.Duration, jsonOut bool) error {
	done := make(chan outcome, 1)
	svc.SetEventHandlers(analyses.EventHandlers{
		OnProgress: func(s analyses.Session) {
			if !jsonOut {
				fmt.Fprintf(progress, "%-10s %3d%%  %s\n", s.Status, s.Progress, s.CurrentStep)
			}
		},
		OnComplete: func(s analyses.Session, r results.Report) {
			done <- outcome{session: s, report: &r}
		},
		OnError: func(s analyses.Session, msg, code string) {
			done <- outcome{session: s, message: msg, code: code}
		},
	})

	res := svc.StartAnalysis(ctx, req)
	if !res.Success {
		return fmt.Errorf("start analysis: %s (%s)", res.Error, res.Code)
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	select {
	case o := <-done:
		return printOutcome(out, o, jsonOut)
	case <-waitCtx.Done():
		if svc.CancelAnalysis(context.WithoutCancel(ctx), res.SessionID) {
			fmt.Fprintf(progress, "cancelled session %s\n", res.SessionID)
		}
		return fmt.Errorf("analysis %s did not finish: %w", res.SessionID, waitCtx.Err())
	}
}

func printOutcome(w io.Writer, o outcome, jsonOut bool) error {
	if o.report == nil {
		if jsonOut {
			_ = writeJSON(w, map[string]any{"session": o.session, "error": o.message, "code": o.code})
		}
		return fmt.Errorf("analysis %s failed: %s (%s)", o.session.ID, o.message, o.code)
	}
	if jsonOut {
		return writeJSON(w, map[string]any{
			"session":    o.session,
			"report":     o.report,
			"statistics": results.ComputeStatistics(*o.report),
		})
	}
	r := o.report
	fmt.Fprintf(w, "session %s: %s (score %d)\n", o.session.ID, r.Status, r.OverallScore)
	fmt.Fprintf(w, "issues: %d critical, %d warning, %d info\n",
		r.Summary.CriticalIssues, r.Summary.WarningIssues, r.Summary.InfoIssues)
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "  [%s] %s\n", issue.Severity, issue.Title)
	}
	return nil
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the engine's view of an analysis session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.Build(cmd.Context(), flags.loadConfig())
			if err != nil {
				return err
			}
			defer app.Close()

			session, ok := app.AnalysesService.GetAnalysisStatus(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("session %s not found", args[0])
			}
			if flags.jsonOut {
				return writeJSON(cmd.OutOrStdout(), session)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d%% %s\n", session.ID, session.Status, session.Progress, session.CurrentStep)
			return nil
		},
	}
}

func newHealthCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check analysis engine reachability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.Build(cmd.Context(), flags.loadConfig())
			if err != nil {
				return err
			}
			defer app.Close()

			status := app.AnalysesService.ServiceStatus(cmd.Context())
			if flags.jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), status); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s healthy=%t\n", status.BaseURL, status.Healthy)
			}
			if !status.Healthy {
				return fmt.Errorf("engine unhealthy: %s", status.Error)
			}
			return nil
		},
	}
}

func newMockEngineCmd() *cobra.Command {
	var (
		addr         string
		stepInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mock-engine",
		Short: "Serve the scripted mock analysis engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := mockengine.New(mockengine.Options{StepInterval: stepInterval})
			baseURL, err := engine.Start(addr)
			if err != nil {
				return err
			}
			defer engine.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "mock engine listening on %s\n", baseURL)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "listen address")
	cmd.Flags().DurationVar(&stepInterval, "step-interval", 1500*time.Millisecond, "delay between scripted steps; 0 disables auto-advance")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
