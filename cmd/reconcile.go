package main

import (
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/kinetics"
	"github.com/sells-group/biogas-cli/internal/production"
	"github.com/sells-group/biogas-cli/internal/telemetry"
)

var (
	recSamples     string
	recMaterial    string
	recVS          float64
	recTemperature float64
	recStart       string
	recEnd         string
)

// reconcileOutput is the JSON printed by the reconcile command.
type reconcileOutput struct {
	Comparison production.Comparison `json:"comparison"`
	Telemetry  telemetry.Stats       `json:"telemetry"`
	Daily      telemetry.DailyTotals `json:"daily"`
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare an NDJSON export of sensor samples against the expected series",
	Long: "Reads one JSON object per line (an RFC 3339 \"timestamp\" plus payload fields), " +
		"reconciles the samples into daily production and compares it with the kinetic model.",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, closeFn, err := openInput(cmd.InOrStdin(), recSamples)
		if err != nil {
			return err
		}
		defer closeFn()

		samples, err := telemetry.ReadSamples(in)
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			return eris.New("no samples to reconcile")
		}

		loc, err := cfg.Telemetry.Location()
		if err != nil {
			return err
		}
		rec, err := telemetry.NewReconciler(loc).Reconcile(samples)
		if err != nil {
			return err
		}

		start := samples[0].Timestamp.In(loc)
		end := samples[len(samples)-1].Timestamp.In(loc)
		if recStart != "" {
			if start, err = time.ParseInLocation(time.DateOnly, recStart, loc); err != nil {
				return eris.Wrapf(err, "parse --start %q", recStart)
			}
		}
		if recEnd != "" {
			if end, err = time.ParseInLocation(time.DateOnly, recEnd, loc); err != nil {
				return eris.Wrapf(err, "parse --end %q", recEnd)
			}
		}
		if end.Before(start) {
			return eris.Errorf("end %s precedes start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
		}

		reg, err := kinetics.LoadRegistry(cfg.Model.MaterialsFile)
		if err != nil {
			return err
		}
		expected, err := kinetics.Generate(kinetics.Request{
			MaterialClass:  recMaterial,
			VSKgPerDay:     recVS,
			TemperatureC:   recTemperature,
			TargetFraction: &cfg.Model.TargetFraction,
			MaxDays:        &cfg.Model.MaxDays,
		}, reg.Resolve(recMaterial))
		if err != nil {
			return err
		}

		zap.L().Debug("reconciled samples",
			zap.Int("samples", rec.Stats.Samples),
			zap.Int("malformed", rec.Stats.Malformed),
			zap.Int("counter_resets", rec.Stats.Resets),
		)

		return writeJSON(cmd.OutOrStdout(), reconcileOutput{
			Comparison: production.Compare(expected, rec.Daily, start, end),
			Telemetry:  rec.Stats,
			Daily:      rec.Daily,
		})
	},
}

// openInput opens path, or returns stdin for "-".
func openInput(stdin io.Reader, path string) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "open %s", path)
	}
	return f, func() { _ = f.Close() }, nil
}

func init() {
	f := reconcileCmd.Flags()
	f.StringVar(&recSamples, "samples", "-", "NDJSON samples file (- for stdin)")
	f.StringVar(&recMaterial, "material", "", "material class of the stage")
	f.Float64Var(&recVS, "vs", 0, "volatile solids fed, kg/day")
	f.Float64Var(&recTemperature, "temperature", 35, "digester temperature, °C")
	f.StringVar(&recStart, "start", "", "first day of the comparison, YYYY-MM-DD (default first sample)")
	f.StringVar(&recEnd, "end", "", "last day of the comparison, YYYY-MM-DD (default last sample)")
	rootCmd.AddCommand(reconcileCmd)
}
