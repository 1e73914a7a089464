package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hyperscan/internal/deploy"
	"github.com/banshee-data/hyperscan/internal/linmodel"
)

type restoreOptions struct {
	Rows int
}

func newRestoreCommand(o *restoreOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore ARCHIVE.zip",
		Short: "Restore a deploy package and predict on its sample rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := deploy.Restore(args[0], deploy.Options{Loader: linmodel.LoadArtifact})
			if err != nil {
				return err
			}
			return o.print(cmd.OutOrStdout(), pkg)
		},
	}
	cmd.Flags().IntVar(&o.Rows, "rows", 5, "Sample rows to predict.")
	return cmd
}

func (o *restoreOptions) print(out io.Writer, pkg *deploy.Package) error {
	fmt.Fprintf(out, "package %s\n\nparameters:\n", pkg.Name)
	for _, p := range pkg.Params.Params() {
		vals := make([]string, len(p.Values))
		for i, v := range p.Values {
			vals[i] = v.String()
		}
		fmt.Fprintf(out, "  %s: [%s]\n", p.Name, strings.Join(vals, ", "))
	}
	fmt.Fprintln(out, "\ndetails:")
	for _, rec := range pkg.Details {
		fmt.Fprintf(out, "  %s\n", strings.Join(rec, " = "))
	}

	rows, cols := pkg.X.Dims()
	n := min(o.Rows, rows)
	if n <= 0 {
		return nil
	}
	pred, err := pkg.Model.Predict(pkg.X.Slice(0, n, 0, cols))
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	fmt.Fprintf(out, "\npredictions on the first %d sample rows:\n", n)
	for i := 0; i < n; i++ {
		fmt.Fprintf(out, "  %v -> %v\n", mat.Row(nil, i, pkg.Y), mat.Row(nil, i, pred))
	}
	return nil
}
