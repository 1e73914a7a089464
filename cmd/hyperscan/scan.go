package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/banshee-data/hyperscan/internal/analyze"
	"github.com/banshee-data/hyperscan/internal/config"
	"github.com/banshee-data/hyperscan/internal/deploy"
	"github.com/banshee-data/hyperscan/internal/evaluate"
	"github.com/banshee-data/hyperscan/internal/fsutil"
	"github.com/banshee-data/hyperscan/internal/linmodel"
	"github.com/banshee-data/hyperscan/internal/monitoring"
	"github.com/banshee-data/hyperscan/internal/scan"
	"github.com/banshee-data/hyperscan/internal/security"
)

type scanOptions struct {
	File        string
	MetricsAddr string
	XLSX        string
	// Metric ranks rounds for the summary, evaluation and deploy; default
	// the first metric of the results.
	Metric    string
	Ascending bool
	Deploy    string

	EvaluateFolds   int
	EvaluateNModels int
	Top             int
}

func newScanCommand(o *scanOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan -f FILE",
		Short: "Run the scan described by a scan file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&o.File, "file", "f", "", "Scan file (.yaml, .yml or .json).")
	cmd.Flags().StringVar(&o.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while scanning.")
	cmd.Flags().StringVar(&o.XLSX, "xlsx", "", "Also write the results table to this workbook.")
	cmd.Flags().StringVar(&o.Metric, "metric", "", "Metric used to rank rounds.")
	cmd.Flags().BoolVar(&o.Ascending, "ascending", false, "Lower metric values rank first.")
	cmd.Flags().StringVar(&o.Deploy, "deploy", "", "Package the best model under this name.")
	cmd.Flags().IntVar(&o.EvaluateFolds, "evaluate-folds", 0, "Cross-validate the best models with this many folds.")
	cmd.Flags().IntVar(&o.EvaluateNModels, "evaluate-models", 3, "Number of best models to cross-validate.")
	cmd.Flags().IntVar(&o.Top, "top", 5, "Number of best parameter rows printed.")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (o *scanOptions) run(ctx context.Context, out, errOut io.Writer) error {
	f, err := config.Load(nil, o.File)
	if err != nil {
		return err
	}
	if err := f.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	opts, err := f.ToOptions(nil)
	if err != nil {
		return err
	}
	opts.Progress = errOut

	if o.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts.Metrics = reg
		stop, err := serveMetrics(o.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	res, runErr := scan.Run(ctx, opts)
	if res == nil {
		return runErr
	}
	if runErr != nil {
		fmt.Fprintf(errOut, "scan stopped after %d rounds: %v\n", res.Table.Len(), runErr)
	}
	fmt.Fprintf(out, "experiment %s: %d rounds (%s), results in %s\n",
		res.Details.ID, res.Details.Complete, res.Details.StopReason, res.Details.ResultsPath)
	if res.Table.Len() == 0 {
		return runErr
	}

	metric := o.Metric
	if metric == "" {
		metric = res.Table.MetricKeys()[0]
	}
	if o.EvaluateFolds > 0 {
		if err := o.evaluate(ctx, out, res, opts, f.GetModel(), metric); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if err := summarize(out, analyze.New(res.Table), metric, o.Ascending, o.Top); err != nil {
		return errors.Join(runErr, err)
	}

	if o.XLSX != "" {
		book, err := res.Table.WriteXLSX()
		if err != nil {
			return errors.Join(runErr, err)
		}
		if err := os.WriteFile(o.XLSX, book, 0o644); err != nil {
			return errors.Join(runErr, fmt.Errorf("write workbook: %w", err))
		}
		fmt.Fprintf(out, "workbook written to %s\n", o.XLSX)
	}
	if o.Deploy != "" {
		dir := dirOr(opts.OutputDir)
		target := filepath.Join(dir, security.SanitizeFilename(o.Deploy)+".zip")
		if err := security.ValidatePathWithinDirectory(target, dir); err != nil {
			return errors.Join(runErr, err)
		}
		archive, err := deploy.Deploy(res, deploy.Options{
			Name:      o.Deploy,
			Metric:    metric,
			Ascending: o.Ascending,
			Dir:       dir,
			FS:        fsutil.OSFileSystem{},
		})
		if err != nil {
			return errors.Join(runErr, err)
		}
		fmt.Fprintf(out, "deploy package written to %s\n", archive)
	}
	return runErr
}

func dirOr(dir string) string {
	if dir == "" {
		return "."
	}
	return filepath.Clean(dir)
}

// taskFor picks the scoring task of a built-in model kind.
func taskFor(model string, outputs int) evaluate.Task {
	switch linmodel.Kind(model) {
	case linmodel.Linear:
		return evaluate.Continuous
	case linmodel.Softmax:
		return evaluate.MultiClass
	}
	if outputs > 1 {
		return evaluate.MultiLabel
	}
	return evaluate.Binary
}

func (o *scanOptions) evaluate(ctx context.Context, out io.Writer, res *scan.Result, opts scan.Options, model, metric string) error {
	_, outputs := opts.Y.Dims()
	task := taskFor(model, outputs)
	scores, err := res.EvaluateModels(ctx, evaluate.Options{
		X:         opts.X,
		Y:         opts.Y,
		Task:      task,
		Folds:     o.EvaluateFolds,
		Metric:    metric,
		NModels:   o.EvaluateNModels,
		Ascending: o.Ascending,
	})
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	order, err := res.Table.Order(metric, o.Ascending)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d-fold %s of the best %d rounds:\n", o.EvaluateFolds, task.ScoreName(), len(scores))
	for _, row := range order {
		s, ok := scores[row]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "  round %d: %.4f ± %.4f\n", row, s.Mean, s.Std)
	}
	return nil
}

// serveMetrics exposes reg on addr until the returned stop is called.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logf := monitoring.Scoped("metrics")
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logf("metrics server: %v", err)
		}
	}()
	logf("serving metrics on http://%s/metrics", ln.Addr())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logf("metrics server shutdown: %v", err)
			_ = server.Close()
		}
	}, nil
}
