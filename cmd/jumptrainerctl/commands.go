package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jumptrainer/internal/feed"
	"jumptrainer/internal/model"
	"jumptrainer/internal/platform"
	"jumptrainer/internal/scape"
	"jumptrainer/internal/script"
	"jumptrainer/internal/stats"
	"jumptrainer/pkg/jumptrainer"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		paced bool
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one training simulation and store the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim := a.cfg.Simulation
			source, err := script.Load(sim.ScriptPath)
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			progress := rate.Sometimes{Interval: 250 * time.Millisecond}
			errOut := cmd.ErrOrStderr()
			summary, err := client.Run(cmd.Context(), jumptrainer.RunRequest{
				Agents:         sim.AgentCount,
				Episodes:       sim.EpisodeBudget,
				TicksPerSecond: sim.TicksPerSecond,
				Script:         source,
				Seed:           sim.Seed,
				Paced:          paced,
				Progress: func(snap platform.Snapshot) {
					if quiet {
						return
					}
					progress.Do(func() {
						fmt.Fprintf(errOut, "[%s] %s\n", snap.StatusLabel, snap.Message)
					})
				},
			})
			if err != nil {
				return err
			}
			printRunSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int("agents", 4, "number of agents (clamped to 1..15)")
	flags.Int("episodes", 60, "episode budget")
	flags.Int("tps", 60, "ticks per second, also the episode length in ticks")
	flags.Int64("seed", 0, "random seed (0 picks one from the clock)")
	flags.String("script", "", "policy script path (default is the built-in template)")
	flags.BoolVar(&paced, "paced", false, "run at wall-clock speed instead of as fast as possible")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}

func printRunSummary(w io.Writer, summary jumptrainer.RunSummary) {
	run := summary.Run
	fmt.Fprintf(w, "run %s %s\n", run.ID, run.Status)
	fmt.Fprintf(w, "  %s\n", run.Message)
	fmt.Fprintf(w, "  agents=%d episodes=%d/%d ticks=%s seed=%d signature=#%d\n",
		run.AgentCount, run.Episodes, run.EpisodeBudget, humanize.Comma(int64(run.Ticks)), run.Seed, run.Signature)
	fmt.Fprintf(w, "  mean reward=%.2f best=%s (r=%.0f)\n", run.MeanReward, summary.Best.Name, summary.Best.Reward)
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(cmd.Context(), jumptrainer.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTATUS\tAGENTS\tEPISODES\tMEAN R\tSTARTED")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%.2f\t%s\n",
					run.ID, run.Status, run.AgentCount, run.Episodes, run.EpisodeBudget, run.MeanReward, startedAgo(run))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 lists all)")
	return cmd
}

func startedAgo(run model.RunRecord) string {
	started, err := time.Parse(time.RFC3339Nano, run.StartedAtUTC)
	if err != nil {
		return run.StartedAtUTC
	}
	return humanize.Time(started)
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a stored run (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			run, err := client.Show(cmd.Context(), firstArg(args))
			if err != nil {
				return err
			}
			episodes, err := client.Episodes(cmd.Context(), jumptrainer.EpisodesRequest{RunID: run.ID})
			if err != nil {
				return err
			}
			best, _ := stats.BestAgent(run)
			printRunSummary(cmd.OutOrStdout(), jumptrainer.RunSummary{Run: run, Episodes: episodes, Best: best})

			out := cmd.OutOrStdout()
			totals := stats.TotalOutcomes(episodes)
			fmt.Fprintf(out, "  started %s, %s passes, %s collisions, %s jumps\n",
				startedAgo(run), humanize.Comma(int64(totals.Successes)), humanize.Comma(int64(totals.Failures)), humanize.Comma(int64(totals.Jumps)))

			tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "AGENT\tLANE\tTHRESHOLD\tRATE\tREWARD\tLAST")
			for _, agent := range run.Agents {
				fmt.Fprintf(tw, "%s\t%.2f\t%.3f\t%.4f\t%.0f\t%s\n",
					agent.Name, agent.Lane, agent.Threshold, agent.Rate, agent.Reward, outcomeSymbol(agent.Outcome))
			}
			return tw.Flush()
		},
	}
}

func outcomeSymbol(outcome string) string {
	switch outcome {
	case scape.OutcomeSuccess.String():
		return scape.OutcomeSuccess.Symbol()
	case scape.OutcomeFailure.String():
		return scape.OutcomeFailure.Symbol()
	default:
		return scape.OutcomePending.Symbol()
	}
}

func newEpisodesCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "episodes [run-id]",
		Short: "Print the per-episode history of a run (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			runID := firstArg(args)
			episodes, err := client.Episodes(cmd.Context(), jumptrainer.EpisodesRequest{
				RunID:  runID,
				Latest: runID == "",
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "EPISODE\tTICK\tMEAN R\tMEAN THRESHOLD\tPASS\tHIT\tJUMPS")
			for _, e := range episodes {
				fmt.Fprintf(tw, "%02d\t%d\t%.2f\t%.3f\t%d\t%d\t%d\n",
					e.Episode, e.Tick, e.MeanReward, e.MeanThreshold, e.Successes, e.Failures, e.Jumps)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "only the last N episodes (0 prints all)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Write run.json, episodes.csv and agents.csv for a run (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			runID := firstArg(args)
			exported, err := client.Export(cmd.Context(), jumptrainer.ExportRequest{
				RunID:  runID,
				Latest: runID == "",
				OutDir: a.cfg.Exports.Dir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run %s to %s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().String("out", "exports", "output directory")
	return cmd
}

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		seeds []int64
		count int
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the world headlessly across several seeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runSeeds := append([]int64(nil), seeds...)
			if len(runSeeds) == 0 {
				if count <= 0 {
					return errors.New("--count must be positive when --seeds is empty")
				}
				for i := 1; i <= count; i++ {
					runSeeds = append(runSeeds, int64(i))
				}
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			sim := a.cfg.Simulation
			report, err := client.Evaluate(cmd.Context(), jumptrainer.EvaluateRequest{
				Agents:          sim.AgentCount,
				Episodes:        sim.EpisodeBudget,
				TicksPerEpisode: sim.TicksPerSecond,
				Seeds:           runSeeds,
				Workers:         a.cfg.Evaluate.Workers,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "SEED\tFITNESS\tPASS\tHIT\tBEST")
			for _, r := range report.Results {
				fmt.Fprintf(tw, "%d\t%.3f\t%d\t%d\t%s\n", r.Seed, r.Fitness, r.Successes, r.Failures, r.BestAgent)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "runs=%d mean=%.3f std=%.3f min=%.3f max=%.3f best_seed=%d\n",
				report.Runs, report.MeanFitness, report.StdFitness, report.MinFitness, report.MaxFitness, report.BestSeed)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int("agents", 4, "number of agents (clamped to 1..15)")
	flags.Int("episodes", 60, "episodes per seed")
	flags.Int("tps", 60, "ticks per episode")
	flags.Int("workers", 4, "parallel evaluations (0 uses GOMAXPROCS)")
	flags.Int64SliceVar(&seeds, "seeds", nil, "explicit seeds")
	flags.IntVar(&count, "count", 8, "evaluate seeds 1..N when --seeds is empty")
	return cmd
}

func newSignatureCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signature",
		Short: "Print the policy signature of a script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := script.Load(a.cfg.Simulation.ScriptPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), script.LoadedMessage(script.Signature(source)))
			return nil
		},
	}
	cmd.Flags().String("script", "", "policy script path (default is the built-in template)")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live snapshots over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sim := a.cfg.Simulation
			source, err := script.Load(sim.ScriptPath)
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Init(cmd.Context()); err != nil {
				return err
			}

			driver := platform.NewDriver(platform.Options{
				Recorder: client.Recorder(),
				Logger:   a.logger,
			})
			defer driver.Stop()

			server := feed.NewServer(driver, feed.Options{
				Addr:   a.cfg.Server.Addr,
				MaxFPS: a.cfg.Server.MaxFPS,
				Defaults: feed.Defaults{
					Agents:         sim.AgentCount,
					EpisodeBudget:  sim.EpisodeBudget,
					TicksPerSecond: sim.TicksPerSecond,
					Script:         source,
				},
				Logger: a.logger,
			})
			a.logger.Info("serving snapshots", zap.String("addr", a.cfg.Server.Addr))
			return server.ListenAndServe(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.Int("max-fps", 30, "maximum websocket frames per second")
	flags.Int("agents", 4, "default agent count for start requests")
	flags.Int("episodes", 60, "default episode budget for start requests")
	flags.String("script", "", "policy script path (default is the built-in template)")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset store=%s\n", a.cfg.Store.Kind)
			return nil
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
