package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/biogas-cli/internal/kinetics"
)

var (
	calcMaterial    string
	calcVS          float64
	calcVolume      float64
	calcTemperature float64
	calcHRT         float64
	calcVSCost      float64
	calcWaterCost   float64
	calcWater       float64
	calcAdditives   float64
	calcJSON        bool
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Estimate the steady-state operating point and daily costs",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := kinetics.LoadRegistry(cfg.Model.MaterialsFile)
		if err != nil {
			return err
		}

		req := kinetics.CalcRequest{
			MaterialClass:       calcMaterial,
			VSKgPerDay:          calcVS,
			VSCostPerKg:         calcVSCost,
			WaterCostPerM3:      calcWaterCost,
			WaterM3PerDay:       calcWater,
			AdditivesCostPerDay: calcAdditives,
		}
		if cmd.Flags().Changed("volume") {
			req.ReactorVolumeM3 = &calcVolume
		}
		if cmd.Flags().Changed("temperature") {
			req.TemperatureC = &calcTemperature
		}
		if cmd.Flags().Changed("hrt") {
			req.HRTDays = &calcHRT
		}

		res, err := kinetics.Estimate(req, reg.Resolve(calcMaterial))
		if err != nil {
			return err
		}

		if calcJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		printCalc(cmd.OutOrStdout(), res)
		return nil
	},
}

func printCalc(out io.Writer, r *kinetics.CalcResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Reactor volume:\t%.3f m3\n", r.ReactorVolumeM3)
	_, _ = fmt.Fprintf(w, "Substrate:\t%.3f kg VS/m3\n", r.SKgPerM3)
	_, _ = fmt.Fprintf(w, "mu_max (adjusted):\t%.4f 1/day\n", r.MuMax)
	_, _ = fmt.Fprintf(w, "mu_eff:\t%.4f 1/day\n", r.MuEff)
	_, _ = fmt.Fprintf(w, "Potential:\t%.3f m3\n", r.PotentialM3)
	_, _ = fmt.Fprintf(w, "Cumulative at HRT:\t%.3f m3\n", r.CumulativeAtHRTM3)
	_, _ = fmt.Fprintf(w, "Biogas:\t%.3f m3/day\n", r.BiogasM3PerDay)
	_, _ = fmt.Fprintf(w, "Methane:\t%.3f m3/day\n", r.MethaneM3PerDay)
	_, _ = fmt.Fprintf(w, "VS degraded:\t%.3f kg/day\n", r.VSDegradedKgPerDay)
	_, _ = fmt.Fprintf(w, "VS out:\t%.3f kg/day\n", r.VSOutKgPerDay)
	_, _ = fmt.Fprintf(w, "Biol outflow:\t%.3f m3/day\n", r.BiolM3PerDay)
	_, _ = fmt.Fprintf(w, "Total cost:\t%.2f USD/day\n", r.TotalCostPerDay)
	_ = w.Flush()
}

func init() {
	f := calcCmd.Flags()
	f.StringVar(&calcMaterial, "material", "", "material class (e.g. bovino, porcino)")
	f.Float64Var(&calcVS, "vs", 0, "volatile solids fed, kg/day")
	f.Float64Var(&calcVolume, "volume", 0, "reactor volume, m3 (default derived from HRT)")
	f.Float64Var(&calcTemperature, "temperature", 35, "digester temperature, °C")
	f.Float64Var(&calcHRT, "hrt", 0, "hydraulic retention time, days (default from material)")
	f.Float64Var(&calcVSCost, "vs-cost", 0, "cost per kg of VS, USD")
	f.Float64Var(&calcWaterCost, "water-cost", 0, "cost per m3 of water, USD")
	f.Float64Var(&calcWater, "water", 0, "water added, m3/day")
	f.Float64Var(&calcAdditives, "additives-cost", 0, "additives cost, USD/day")
	f.BoolVar(&calcJSON, "json", false, "print JSON instead of a table")
	_ = calcCmd.MarkFlagRequired("vs")
	rootCmd.AddCommand(calcCmd)
}
