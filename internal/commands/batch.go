package commands

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"trivy-plugin-exposure-risk/internal/report"
)

func newBatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <CVE>...",
		Short: "Risk of an asset exposed to several CVEs, using their mean exposure factor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			date, err := rt.Options.EvaluationDate()
			if err != nil {
				return err
			}
			res, err := rt.Assessor.Batch(cmd.Context(), args, date, rt.Options.Asset(), rt.Options.Workers)
			if err != nil {
				return err
			}
			return a.render(cmd, rt.Options, report.NewBatchView(res))
		},
	}
	addAssetFlags(cmd)
	addWorkersFlag(cmd)
	return cmd
}

func newAssessCommand(a *app) *cobra.Command {
	var (
		input  string
		enrich bool
	)
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Risk of an asset from the vulnerabilities of a Trivy JSON report",
		Long: `Reads a Trivy JSON report from stdin (or --input) and evaluates every
vulnerability it lists. With --enrich the report is written back as JSON with
the assessment of each vulnerability stored under Custom.ExposureFactor.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			date, err := rt.Options.EvaluationDate()
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if input != "" {
				f, err := os.Open(input)
				if err != nil {
					return errors.Wrap(err, "could not open report")
				}
				defer f.Close()
				r = f
			}
			rep, err := report.Decode(r)
			if err != nil {
				return err
			}

			ids := report.CollectCVEIDs(rep)
			if len(ids) == 0 {
				return errors.New("the report lists no vulnerabilities")
			}
			res, err := rt.Assessor.Batch(cmd.Context(), ids, date, rt.Options.Asset(), rt.Options.Workers)
			if err != nil {
				return err
			}

			if enrich {
				report.Enrich(&rep, res.Assessments)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			return a.render(cmd, rt.Options, report.NewBatchView(res))
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Trivy JSON report to read instead of stdin")
	cmd.Flags().BoolVar(&enrich, "enrich", false, "write the Trivy report back with the assessments attached")
	addAssetFlags(cmd)
	addWorkersFlag(cmd)
	return cmd
}
