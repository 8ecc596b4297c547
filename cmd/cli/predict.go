package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/covenantwatch/internal/application"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/internal/infrastructure/modelstore"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
	"github.com/turtacn/covenantwatch/pkg/utils"
)

// predictInput is the document `cwctl predict` reads.
type predictInput struct {
	Loan           *models.Loan           `json:"loan"`
	CovenantChecks []models.CovenantCheck `json:"covenant_checks"`
}

type predictOptions struct {
	input     string
	modelPath string
	horizons  string
	noise     string
	seed      int64
	asOf      string
	covenant  string
}

func newPredictCmd(newLogger func() logger.Logger) *cobra.Command {
	var opts predictOptions
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a loan offline from a JSON file",
		Long: `predict reads {"loan": {...}, "covenant_checks": [...]} and prints the
multi-horizon risk assessment. No database or ledger is involved.`,
		Example: `  cwctl predict -f loan.json --horizons 30,90 --noise off
  cwctl predict -f loan.json --covenant cov-dscr --horizons 60`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, opts, newLogger())
		},
	}
	cmd.Flags().StringVarP(&opts.input, "file", "f", "", "input JSON file (- for stdin)")
	cmd.Flags().StringVarP(&opts.modelPath, "model", "m", "", "model parameters file (default: built-in parameters)")
	cmd.Flags().StringVar(&opts.horizons, "horizons", "", "comma-separated horizons in days (default 30,60,90)")
	cmd.Flags().StringVar(&opts.noise, "noise", string(constants.NoiseModeSeeded), "noise mode: stochastic, seeded or off")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "seed for stochastic noise (0 seeds from the clock)")
	cmd.Flags().StringVar(&opts.asOf, "as-of", "", "evaluation date, RFC 3339 or YYYY-MM-DD (default now)")
	cmd.Flags().StringVar(&opts.covenant, "covenant", "", "score a single covenant at the first horizon")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runPredict(cmd *cobra.Command, opts predictOptions, log logger.Logger) error {
	in, err := readPredictInput(cmd.InOrStdin(), opts.input)
	if err != nil {
		return err
	}

	mode := constants.NoiseMode(opts.noise)
	if !mode.IsValid() {
		return fmt.Errorf("invalid noise mode %q", opts.noise)
	}
	now, err := clockAt(opts.asOf)
	if err != nil {
		return err
	}
	horizons, err := utils.ParseHorizons(opts.horizons, constants.MaxHorizonDays)
	if err != nil {
		return err
	}

	params := models.DefaultModelParameters()
	if opts.modelPath != "" {
		if params, err = modelstore.Load(opts.modelPath); err != nil {
			return err
		}
	}
	model, err := service.NewRiskModel(params, service.NoiseConfig{Mode: mode, Seed: opts.seed}, now)
	if err != nil {
		return err
	}
	predictor := application.NewPredictionService(
		service.NewFeatureEngineer(now),
		model,
		service.NewExplainabilityEngine(now),
		service.NoopBreachNotifier{},
		nil,
		log,
		application.PredictionServiceConfig{},
		now,
	)

	ctx := cmd.Context()
	if opts.covenant != "" {
		horizon := constants.DefaultCovenantHorizonDays
		if len(horizons) > 0 {
			horizon = horizons[0]
		}
		pred, err := predictor.PredictCovenantRisk(ctx, in.Loan, opts.covenant, in.CovenantChecks, horizon)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), pred)
	}

	assessment, err := predictor.PredictRisk(ctx, in.Loan, in.CovenantChecks, horizons)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), assessment)
}

func readPredictInput(stdin io.Reader, path string) (*predictInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	var in predictInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if in.Loan == nil {
		return nil, fmt.Errorf("input has no \"loan\" object")
	}
	if in.Loan.ID == "" {
		in.Loan.ID = "offline"
	}
	if in.Loan.Status == "" {
		in.Loan.Status = constants.LoanStatusActive
	}
	return &in, nil
}

// clockAt returns a fixed clock for asOf, or nil (time.Now) when empty.
func clockAt(asOf string) (func() time.Time, error) {
	if asOf == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, asOf)
	if err != nil {
		if t, err = time.Parse(time.DateOnly, asOf); err != nil {
			return nil, fmt.Errorf("invalid --as-of %q: want RFC 3339 or YYYY-MM-DD", asOf)
		}
	}
	t = t.UTC()
	return func() time.Time { return t }, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
