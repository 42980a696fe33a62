package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/consensus"
	"github.com/contaflow/docextract/internal/store"
)

var (
	correctionsLimit int
	correctedBy      string
	correctionTook   time.Duration
)

var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "Work with the manual-correction ledger",
}

var correctionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored manual corrections",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		rows, err := st.ListCorrections(cmd.Context(), correctionsLimit)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(summarizeCorrections(rows), "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode stats")
		}
		cmd.Println(string(out))
		return nil
	},
}

// correctionSummary aggregates stored ledger rows for the stats command.
type correctionSummary struct {
	Corrections      int            `json:"corrections"`
	Documents        int            `json:"documents"`
	ByField          map[string]int `json:"by_field"`
	CommonErrors     map[string]int `json:"common_errors"`
	AvgTimeToCorrect time.Duration  `json:"avg_time_to_correct"`
}

func summarizeCorrections(rows []store.Correction) correctionSummary {
	summary := correctionSummary{
		ByField:      map[string]int{},
		CommonErrors: map[string]int{},
	}
	docs := map[string]struct{}{}
	var total time.Duration
	for _, c := range rows {
		summary.Corrections++
		docs[c.DocumentID] = struct{}{}
		summary.ByField[c.Field]++
		if !consensus.FieldsEqual(c.Field, c.Original, c.Corrected) {
			summary.CommonErrors[fmt.Sprintf("%s:%s->%s", c.Field, c.Original, c.Corrected)]++
		}
		total += c.TimeToCorrect
	}
	summary.Documents = len(docs)
	if summary.Corrections > 0 {
		summary.AvgTimeToCorrect = total / time.Duration(summary.Corrections)
	}
	return summary
}

var correctionsRecordCmd = &cobra.Command{
	Use:   "record <document-id> <field> <corrected-value>",
	Short: "Record a manual correction against a processed document",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, field, corrected := args[0], args[1], args[2]

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		records, err := st.ListRecords(cmd.Context(), "", 1000)
		if err != nil {
			return err
		}
		var original *store.StoredRecord
		for i := range records {
			if records[i].DocumentID == docID {
				original = &records[i]
				break
			}
		}
		if original == nil {
			return eris.Errorf("no stored record for document %s", docID)
		}

		correction := store.Correction{
			DocumentID:    docID,
			Tenant:        original.Tenant,
			Field:         field,
			Original:      original.Record.Field(field),
			Corrected:     corrected,
			CorrectedBy:   correctedBy,
			TimeToCorrect: correctionTook,
		}
		if err := st.SaveCorrection(cmd.Context(), correction); err != nil {
			return err
		}

		zap.L().Info("correction recorded",
			zap.String("document_id", docID),
			zap.String("field", field),
			zap.Bool("changed", !consensus.FieldsEqual(field, correction.Original, corrected)),
		)
		return nil
	},
}

func init() {
	correctionsStatsCmd.Flags().IntVar(&correctionsLimit, "limit", 1000, "max corrections to read")
	correctionsRecordCmd.Flags().StringVar(&correctedBy, "by", "", "reviewer identifier")
	correctionsRecordCmd.Flags().DurationVar(&correctionTook, "took", 0, "time the reviewer spent on the correction")
	correctionsCmd.AddCommand(correctionsStatsCmd, correctionsRecordCmd)
	rootCmd.AddCommand(correctionsCmd)
}
