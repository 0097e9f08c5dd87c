package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"pawtrail/internal/app"
	"pawtrail/internal/config"
	"pawtrail/internal/core"
	"pawtrail/internal/geo"
	"pawtrail/internal/prediction"
	"pawtrail/internal/types"
)

type predictOptions struct {
	profilePath     string
	hours           []float64
	seed            uint64
	format          string
	preset          string
	calibrationFile string
	liveWeather     bool
	logLevel        string
}

func predictCommand() *cobra.Command {
	opts := &predictOptions{}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict search zones for a pet profile",
		Long: `Run the prediction engine on a JSON pet profile and print the result.

Runs offline by default. With --live-weather the weather, geocoding and
OpenStreetMap providers are configured from the same environment as the API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.profilePath, "profile", "p", "", "Path to the pet profile JSON (- for stdin)")
	f.Float64SliceVar(&opts.hours, "hours", nil, "Time frames in hours (default 1,6,24,72,168)")
	f.Uint64Var(&opts.seed, "seed", 0, "Heatmap seed (default derived from the profile)")
	f.StringVarP(&opts.format, "format", "f", "json", "Output format: json, geojson")
	f.StringVar(&opts.preset, "preset", "", "Priority preset (e.g. extended, rapid)")
	f.StringVar(&opts.calibrationFile, "calibration", "", "Calibration YAML overriding the embedded table")
	f.BoolVar(&opts.liveWeather, "live-weather", false, "Query upstream providers")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func runPredict(cmd *cobra.Command, opts *predictOptions) error {
	if opts.format != "json" && opts.format != "geojson" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	logger := app.NewLogger(opts.logLevel, cmd.ErrOrStderr())

	profile, err := readProfile(cmd.InOrStdin(), opts.profilePath)
	if err != nil {
		return err
	}
	if err := core.NewValidator(logger).Struct(profile); err != nil {
		return err
	}

	engine, err := buildEngine(opts, logger)
	if err != nil {
		return err
	}

	frames := prediction.DefaultTimeFrames()
	if len(opts.hours) > 0 {
		frames = make([]types.PredictionTimeFrame, 0, len(opts.hours))
		for _, h := range opts.hours {
			frames = append(frames, types.PredictionTimeFrame{Hours: h, Label: frameLabel(h)})
		}
	}
	var popts []prediction.PredictOption
	if cmd.Flags().Changed("seed") {
		popts = append(popts, prediction.WithSeed(opts.seed))
	}
	if opts.preset != "" {
		popts = append(popts, prediction.WithPriorityPreset(opts.preset))
	}

	res, err := engine.Predict(cmd.Context(), profile, frames, popts...)
	if err != nil {
		return err
	}

	var out []byte
	if opts.format == "geojson" {
		fc, err := geo.FeatureCollection(res, true)
		if err != nil {
			return err
		}
		out, err = fc.MarshalJSON()
		if err != nil {
			return err
		}
	} else {
		out, err = json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func buildEngine(opts *predictOptions, logger *slog.Logger) (*prediction.Engine, error) {
	if !opts.liveWeather {
		table, err := app.LoadCalibration(config.PredictionConfig{CalibrationFile: opts.calibrationFile})
		if err != nil {
			return nil, err
		}
		return prediction.NewEngine(table, prediction.WithLogger(logger)), nil
	}

	cfg, err := config.LoadConfig(app.SecretProvider())
	if err != nil {
		return nil, err
	}
	if opts.calibrationFile != "" {
		cfg.Prediction.CalibrationFile = opts.calibrationFile
	}
	return app.NewEngine(cfg, logger, nil)
}

func readProfile(stdin io.Reader, path string) (types.PetProfile, error) {
	var profile types.PetProfile
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return profile, err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&profile); err != nil {
		return profile, fmt.Errorf("reading profile %s: %w", path, err)
	}
	return profile, nil
}

func frameLabel(h float64) string {
	if h == 1 {
		return "1 hour"
	}
	return strconv.FormatFloat(h, 'f', -1, 64) + " hours"
}
