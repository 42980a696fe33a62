package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/export"
)

var (
	exportTenant string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Write processed extractions to a review worksheet",
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

		records, err := st.ListRecords(cmd.Context(), exportTenant, exportLimit)
		if err != nil {
			return err
		}
		if err := export.WriteReview(args[0], records); err != nil {
			return err
		}

		zap.L().Info("review sheet written",
			zap.String("path", args[0]),
			zap.Int("records", len(records)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTenant, "tenant", "", "restrict to one tenant")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 500, "max records to export")
	rootCmd.AddCommand(exportCmd)
}
