package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/dashboard"
	"github.com/sells-group/biogas-cli/internal/model"
)

var (
	reportStage        string
	reportType         string
	reportObservations string
	reportInferences   string
	reportListLimit    int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Create, regenerate and list stage reports",
}

var reportCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Render a report for a stage (default the active stage)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "report")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.CreateReport(ctx, dashboard.ReportRequest{
			StageID:      reportStage,
			Type:         model.ReportType(reportType),
			Observations: reportObservations,
			Inferences:   reportInferences,
		})
		if err != nil {
			return err
		}
		zap.L().Info("report created",
			zap.String("report_id", res.Report.ID),
			zap.String("stage_id", res.Report.StageID),
			zap.Bool("stage_active", res.StageActive),
		)
		printReport(cmd.OutOrStdout(), res.Report)
		return nil
	},
}

var reportRegenerateCmd = &cobra.Command{
	Use:   "regenerate <report-id>",
	Short: "Re-render the files of an existing report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "report")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.RegenerateReport(ctx, args[0])
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), res.Report)
		return nil
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "report")
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := env.Service.ListReports(ctx, reportListLimit)
		if err != nil {
			return err
		}
		printReportList(cmd.OutOrStdout(), reports)
		return nil
	},
}

func printReport(out io.Writer, r *model.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Report:\t%s\n", r.ID)
	_, _ = fmt.Fprintf(w, "Stage:\t%s\n", r.StageID)
	_, _ = fmt.Fprintf(w, "Type:\t%s\n", r.Type)
	_, _ = fmt.Fprintf(w, "Estimated:\t%.2f m3\n", r.ProductionEstimated)
	_, _ = fmt.Fprintf(w, "Real:\t%.2f m3\n", r.ProductionReal)
	_, _ = fmt.Fprintf(w, "Excel:\t%s\n", r.ExcelPath)
	_, _ = fmt.Fprintf(w, "CSV:\t%s\n", r.CSVPath)
	_ = w.Flush()
}

func printReportList(out io.Writer, reports []model.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAGE\tTYPE\tESTIMATED_M3\tREAL_M3\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t----\t------------\t-------\t-------")
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%s\n",
			r.ID, r.StageID, r.Type, r.ProductionEstimated, r.ProductionReal,
			r.CreatedAt.Format(time.DateTime))
	}
	_ = w.Flush()
}

func init() {
	f := reportCreateCmd.Flags()
	f.StringVar(&reportStage, "stage", "", "stage ID (default the active stage)")
	f.StringVar(&reportType, "type", string(model.ReportNormal), "report type: normal or final (final closes the stage)")
	f.StringVar(&reportObservations, "observations", "", "operator observations")
	f.StringVar(&reportInferences, "inferences", "", "inferences (default generated from the deviation)")

	reportListCmd.Flags().IntVar(&reportListLimit, "limit", 20, "maximum reports to list")

	reportCmd.AddCommand(reportCreateCmd, reportRegenerateCmd, reportListCmd)
	rootCmd.AddCommand(reportCmd)
}
