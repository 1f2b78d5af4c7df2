package commands

import (
	"github.com/spf13/cobra"

	"trivy-plugin-exposure-risk/internal/assess"
	"trivy-plugin-exposure-risk/internal/report"
)

func newExposureFactorCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ef <CVE>",
		Short: "Exposure factor of a CVE with its impact and probability breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			date, err := rt.Options.EvaluationDate()
			if err != nil {
				return err
			}
			res, err := rt.Assessor.ExposureFactor(cmd.Context(), args[0], date)
			if err != nil {
				return err
			}
			return a.render(cmd, rt.Options, report.NewAssessmentView(res))
		},
	}
}

func newRiskCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk <CVE>",
		Short: "Risk of an asset exposed to a CVE: asset value * exposure factor * occurrence rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			date, err := rt.Options.EvaluationDate()
			if err != nil {
				return err
			}
			res, err := rt.Assessor.Risk(cmd.Context(), args[0], date, rt.Options.Asset())
			if err != nil {
				return err
			}
			return a.render(cmd, rt.Options, report.NewRiskView(res))
		},
	}
	addAssetFlags(cmd)
	return cmd
}

func newLEVCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lev <CVE>",
		Short: "Cumulative probability that a CVE has been exploited since its disclosure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			date, err := rt.Options.EvaluationDate()
			if err != nil {
				return err
			}
			res := rt.Engine.Evaluate(cmd.Context(), args[0], date)
			return a.render(cmd, rt.Options, report.NewLEVView(res))
		},
	}
}

func newTimelineCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline <CVE>",
		Short: "Exposure factor of a CVE from its disclosure until today",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			tl, err := rt.Assessor.Timeline(cmd.Context(), args[0], rt.Options.Step)
			if err != nil {
				return err
			}
			return a.render(cmd, rt.Options, report.NewTimelineView(tl))
		},
	}
	cmd.Flags().Int("step", assess.DefaultTimelineStep, "days between two timeline points")
	return cmd
}
