package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/calibrate"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect and move calibration model snapshots",
}

var modelExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the latest stored calibration model to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		m, err := st.LatestModel(cmd.Context())
		if err != nil {
			return err
		}
		if m == nil {
			return eris.New("no calibration model stored yet")
		}

		out, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode model")
		}
		if err := os.WriteFile(args[0], out, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", args[0])
		}

		zap.L().Info("model exported",
			zap.String("path", args[0]),
			zap.Int("version", m.Version),
			zap.Int("samples", m.SampleCount),
		)
		return nil
	},
}

var modelImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load a calibration model snapshot into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		var m calibrate.Model
		if err := json.Unmarshal(data, &m); err != nil {
			return eris.Wrap(err, "decode model")
		}

		// Run the snapshot through the service's validation before storing.
		svc := calibrate.NewService(calibrate.ServiceOptions{})
		defer svc.Close()
		if err := svc.Import(m); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if err := st.SaveModel(cmd.Context(), m); err != nil {
			return err
		}
		zap.L().Info("model imported",
			zap.String("path", args[0]),
			zap.Int("version", m.Version),
		)
		return nil
	},
}

func init() {
	modelCmd.AddCommand(modelExportCmd, modelImportCmd)
	rootCmd.AddCommand(modelCmd)
}
