/*
gnneval evaluates a trained multi-robot coverage policy. Each scenario is a reward grid
and a team of robots; the policy picks one move per robot from their features and
communication graph, and its moves are scored against the ground-truth moves and a
uniform random baseline by the reward each collects in the robots' swept field of view.
Runs are stored so they can be listed and compared later, and an evaluation can be
watched live in the browser while its scenarios are compared.
*/

package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	"gnneval/dataset"
	"gnneval/evaluation"
	"gnneval/policy"
	"gnneval/server"
	"gnneval/store"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := runApp(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runApp() error {
	appCtx, appCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer appCancel()

	return rootCommand().ExecuteContext(appCtx)
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "gnneval",
		Short:         "Evaluate multi-robot coverage policies against ground truth and a random baseline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(generateCommand(), evaluateCommand(), reportCommand())
	return root
}

// loadConfig reads the config file, or returns the defaults when none is passed.
func loadConfig(path string) (*evaluation.EvalConfig, error) {
	if path == "" {
		return evaluation.DefaultEvalConfig(), nil
	}
	return evaluation.FromYaml(path)
}

func generateCommand() *cobra.Command {
	var (
		configPath string
		outPath    string
		count      int
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Synthesize unlabeled scenarios: reward grids, robot placements, features and adjacency",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			if count <= 0 {
				return fmt.Errorf("count must be positive, got %d", count)
			}
			return runGenerate(cfg, outPath, count)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "evaluation config yaml")
	cmd.Flags().StringVar(&outPath, "out", "scenarios.yaml", "scenario file to write")
	cmd.Flags().IntVar(&count, "count", 100, "number of scenarios")
	cmd.Flags().Int64Var(&seed, "seed", 0, "generator seed, overriding the config")
	return cmd
}

func runGenerate(cfg *evaluation.EvalConfig, outPath string, count int) error {
	gen := cfg.Generator
	// The model consumes a prefix of the generated features, so generate at least that many.
	gen.TargetFeatures = max(gen.TargetFeatures, cfg.TargetFeatures)
	gen.RobotFeatures = max(gen.RobotFeatures, cfg.RobotFeatures)

	rng := rand.New(rand.NewSource(cfg.Seed))
	scenarios, err := dataset.Generate(rng, &cfg.Config, gen, count)
	if err != nil {
		return err
	}
	if err = dataset.Save(outPath, scenarios); err != nil {
		return err
	}
	log.Printf("wrote %d scenarios to %s\n", len(scenarios), outPath)
	return nil
}

type evaluateOptions struct {
	configPath  string
	datasetPath string
	modelPath   string
	dbPath      string
	serve       bool
	addr        string
	verbose     bool
}

func evaluateCommand() *cobra.Command {
	opts := evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compare a policy's actions with ground truth and a random baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.Context(), &opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "evaluation config yaml")
	cmd.Flags().StringVar(&opts.datasetPath, "dataset", "scenarios.yaml", "scenario file to evaluate")
	cmd.Flags().StringVar(&opts.modelPath, "model", "", "onnx policy; when empty the scenarios' stored predictions are replayed")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "sqlite database for reports; when empty reports are kept in memory")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "serve a live view of the run until interrupted")
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "view server address")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "print every scenario's grid and masks")
	return cmd
}

func openStore(ctx context.Context, dbPath string) (store.Store, error) {
	kind := "memory"
	if dbPath != "" {
		kind = "sqlite"
	}
	reports, err := store.NewStore(kind, dbPath)
	if err != nil {
		return nil, err
	}
	if err = reports.Init(ctx); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return reports, nil
}

func loadPolicy(
	opts *evaluateOptions,
	cfg *evaluation.EvalConfig,
	scenarios []dataset.Scenario,
) (policy.Policy, error) {
	if opts.modelPath != "" {
		return policy.LoadOnnx(opts.modelPath, cfg.Model)
	}
	return evaluation.ReplayPolicy(&cfg.Config, scenarios)
}

func runEvaluate(appCtx context.Context, opts *evaluateOptions) (err error) {
	var cfg *evaluation.EvalConfig
	if cfg, err = loadConfig(opts.configPath); err != nil {
		return
	}

	var scenarios []dataset.Scenario
	if scenarios, err = dataset.Load(opts.datasetPath); err != nil {
		return
	}

	var pol policy.Policy
	if pol, err = loadPolicy(opts, cfg, scenarios); err != nil {
		return
	}

	var reports store.Store
	if reports, err = openStore(appCtx, opts.dbPath); err != nil {
		return
	}
	defer reports.Close()

	group, groupCtx := errgroup.WithContext(appCtx)

	var comparisons chan evaluation.Comparison
	if opts.serve {
		comparisons = make(chan evaluation.Comparison)
		var srv *server.Server
		if srv, err = server.NewServer(groupCtx, opts.addr, cfg.GridSize, comparisons, reports); err != nil {
			return
		}
		group.Go(func() error {
			return srv.Serve(groupCtx)
		})
		log.Printf("serving the run at http://localhost%s\n", opts.addr)
	}

	group.Go(func() error {
		runCtx, cancel, err := cfg.WithDeadline(groupCtx)
		if err != nil {
			return err
		}
		defer cancel()

		rep, err := evaluation.Run(runCtx, cfg, scenarios, pol, progress(len(scenarios), comparisons, opts.verbose))
		if err != nil {
			return err
		}
		if err = reports.SaveReport(groupCtx, rep); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		rep.Show(os.Stdout)

		if opts.serve {
			log.Println("run complete; serving until interrupted")
		}
		return nil
	})

	err = group.Wait()
	return
}

// progress returns the evaluation's progress callback: it logs every tenth of
// the run and, when serving, forwards each comparison to the views.
func progress(
	total int,
	comparisons chan<- evaluation.Comparison,
	verbose bool,
) evaluation.ProgressFunc {
	var done atomic.Int64
	step := int64(max(1, total/10))
	return func(ctx context.Context, cmp evaluation.Comparison) {
		if n := done.Add(1); n%step == 0 || n == int64(total) {
			log.Printf("compared %d/%d scenarios\n", n, total)
		}
		if verbose {
			evaluation.ShowComparison(os.Stdout, &cmp)
		}
		if comparisons != nil {
			select {
			case comparisons <- cmp:
			case <-ctx.Done():
			}
		}
	}
}

func reportCommand() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "List stored runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), dbPath, args)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "reports.db", "sqlite database of reports")
	return cmd
}

func runReport(ctx context.Context, dbPath string, args []string) error {
	reports, err := openStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer reports.Close()

	if len(args) == 1 {
		rep, ok, err := reports.GetReport(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no report with run id %s", args[0])
		}
		rep.Show(os.Stdout)
		return nil
	}

	summaries, err := reports.ListReports(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tSCENARIOS\tACCURACY\tGT\tPRED\tRANDOM")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.4f\t%.4f\t%.4f\t%.4f\n",
			s.RunID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Scenarios, s.Accuracy,
			s.MeanReward.GT, s.MeanReward.Pred, s.MeanReward.Random)
	}
	return tw.Flush()
}
