package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"localsearch-forecast/app"
	"localsearch-forecast/engine"
)

func createServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and background refresh",
		Long: `Start the HTTP API, the realtime event stream, the periodic batch refresher
and the expired trend sweeper. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	rt, err := getRuntime(cmd)
	if err != nil {
		return err
	}
	return app.New(rt.config, rt.logger).Run()
}

// buildApp builds the application for one-shot commands
func buildApp(cmd *cobra.Command) (*app.App, error) {
	rt, err := getRuntime(cmd)
	if err != nil {
		return nil, err
	}
	a := app.New(rt.config, rt.logger)
	if err := a.Build(cmd.Context()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func createPredictCmd() *cobra.Command {
	var location, keyword string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the position of one keyword",
		Example: `  # Predict with the static fixtures
  localsearch-forecast predict --location downtown --keyword "coffee shop"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			pred, err := a.Engine().Predict(cmd.Context(), location, keyword)
			if err != nil {
				return err
			}
			return writeJSON(cmd, pred)
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "", "Location key")
	cmd.Flags().StringVarP(&keyword, "keyword", "k", "", "Keyword")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("keyword")
	return cmd
}

func createBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Recompute every tracked and fixture keyword once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.Refresh(cmd.Context())
			if err := writeJSON(cmd, result); err != nil {
				return err
			}
			if result.Cancelled {
				return fmt.Errorf("batch cancelled after %d of %d keys", result.Completed, result.Requested)
			}
			return nil
		},
	}
}

func createForecastCmd() *cobra.Command {
	var location string
	var months int

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast traffic and conversions for a location",
		Long: `Roll the stored predictions of a location up into a traffic and conversion
forecast. Run "predict" or "batch" first with a persistent store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Engine().Forecast(cmd.Context(), location, months)
			if err != nil {
				return err
			}
			return writeJSON(cmd, result)
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "", "Location key")
	cmd.Flags().IntVarP(&months, "months", "m", 3, fmt.Sprintf("Horizon in months (%d-%d)", engine.MinForecastMonths, engine.MaxForecastMonths))
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func createModelsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List prediction models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			models := a.Engine().Registry().ListModels()
			if asJSON {
				return writeJSON(cmd, models)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tACCURACY\tACTIVE")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%t\n", m.ID, m.Type, m.Accuracy, m.Active)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
