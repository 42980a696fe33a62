package main

import (
	"encoding/json"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/model"
)

var processTenant string

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Run one document through the extraction pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "read %s", path)
		}

		doc := model.Document{
			ID:       uuid.NewString(),
			Bytes:    data,
			MimeType: detectMime(path, data),
			Filename: filepath.Base(path),
			Tenant:   processTenant,
		}

		env.preOCR(ctx, &doc)

		rec, err := env.Manager.Process(ctx, doc)
		if err != nil {
			return err
		}

		if err := env.Store.SaveRecord(ctx, storedFrom(doc, rec)); err != nil {
			zap.L().Warn("persisting record failed", zap.Error(err))
		}
		if err := env.Store.SaveModel(ctx, env.Calibrator.Export()); err != nil {
			zap.L().Warn("persisting calibration model failed", zap.Error(err))
		}

		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode record")
		}
		cmd.Println(string(out))
		return nil
	},
}

// detectMime resolves a mime type from the file extension, falling back to
// content sniffing.
func detectMime(path string, data []byte) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		if parsed, _, err := mime.ParseMediaType(mt); err == nil && parsed != "application/octet-stream" {
			return parsed
		}
	}
	sniffed := http.DetectContentType(data)
	if parsed, _, err := mime.ParseMediaType(sniffed); err == nil {
		return parsed
	}
	return strings.TrimSpace(sniffed)
}

func init() {
	processCmd.Flags().StringVar(&processTenant, "tenant", "", "tenant tag stored with the record")
	rootCmd.AddCommand(processCmd)
}
