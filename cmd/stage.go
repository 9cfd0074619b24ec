package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/biogas-cli/internal/model"
)

var (
	stageMaterial    string
	stageAmount      float64
	stageHumidity    float64
	stageWater       float64
	stageTemperature float64
	stagePeople      string
	stageDate        string
	stageListLimit   int
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Manage digester filling stages",
}

var stageStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new filling stage (closes the active one)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "stage")
		if err != nil {
			return err
		}
		defer env.Close()

		st := &model.Stage{
			People:       stagePeople,
			MaterialType: stageMaterial,
			AmountKg:     stageAmount,
			HumidityPct:  stageHumidity,
			AddedWaterM3: stageWater,
			TemperatureC: stageTemperature,
		}
		if stageDate != "" {
			if st.Date, err = time.Parse(time.DateOnly, stageDate); err != nil {
				return eris.Wrapf(err, "parse --date %q", stageDate)
			}
		}
		if err := env.Service.CreateStage(ctx, st); err != nil {
			return err
		}
		printStages(cmd.OutOrStdout(), []model.Stage{*st})
		return nil
	},
}

var stageCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the active stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "stage")
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := env.Service.CloseCurrentStage(ctx)
		if err != nil {
			return err
		}
		printStages(cmd.OutOrStdout(), []model.Stage{*st})
		return nil
	},
}

var stageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stages, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "stage")
		if err != nil {
			return err
		}
		defer env.Close()

		stages, err := env.Service.ListStages(ctx, stageListLimit)
		if err != nil {
			return err
		}
		printStages(cmd.OutOrStdout(), stages)
		return nil
	},
}

var stageProductionCmd = &cobra.Command{
	Use:   "production [stage-id]",
	Short: "Print expected vs. measured production as JSON (default the active stage)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "stage")
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			prod, err := env.Service.StageProduction(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), prod)
		}
		prod, err := env.Service.CurrentProduction(ctx)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), prod)
	},
}

func printStages(out io.Writer, stages []model.Stage) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNUMBER\tDATE\tMATERIAL\tAMOUNT_KG\tTEMP_C\tACTIVE")
	_, _ = fmt.Fprintln(w, "--\t------\t----\t--------\t---------\t------\t------")
	for _, s := range stages {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%.1f\t%.1f\t%t\n",
			s.ID, s.Number, s.Date.Format(time.DateOnly), s.MaterialType, s.AmountKg, s.TemperatureC, s.Active)
	}
	_ = w.Flush()
}

func init() {
	f := stageStartCmd.Flags()
	f.StringVar(&stageMaterial, "material", "", "material type (e.g. bovino, porcino)")
	f.Float64Var(&stageAmount, "amount", 0, "material loaded, kg")
	f.Float64Var(&stageHumidity, "humidity", 0, "material humidity, %")
	f.Float64Var(&stageWater, "water", 0, "water added, m3")
	f.Float64Var(&stageTemperature, "temperature", 35, "digester temperature, °C")
	f.StringVar(&stagePeople, "people", "", "crew that loaded the digester")
	f.StringVar(&stageDate, "date", "", "loading date, YYYY-MM-DD (default today)")
	_ = stageStartCmd.MarkFlagRequired("material")

	stageListCmd.Flags().IntVar(&stageListLimit, "limit", 20, "maximum stages to list")

	stageCmd.AddCommand(stageStartCmd, stageCloseCmd, stageListCmd, stageProductionCmd)
	rootCmd.AddCommand(stageCmd)
}
