package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/model"
)

var servePort int

// maxUploadBytes bounds document uploads at 25 MiB.
const maxUploadBytes = 25 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown; persist the calibration model on the way out so
		// a restart resumes from the trained weights.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			stopServer(env, srv)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// shutdownTimeout bounds the graceful drain after SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// stopServer persists the calibration model and drains in-flight requests
// within shutdownTimeout.
func stopServer(env *pipelineEnv, srv shutdowner) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := env.Store.SaveModel(ctx, env.Calibrator.Export()); err != nil {
		zap.L().Warn("persisting calibration model failed", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("server shutdown incomplete", zap.Error(err))
	}
}

// newRouter builds the HTTP surface: document intake, pipeline statistics,
// and a liveness probe.
func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/process", func(w http.ResponseWriter, req *http.Request) {
		doc, err := documentFromRequest(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		env.preOCR(req.Context(), &doc)

		rec, err := env.Manager.Process(req.Context(), doc)
		if err != nil {
			zap.L().Error("processing failed",
				zap.String("filename", doc.Filename),
				zap.Error(err),
			)
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "extraction failed"})
			return
		}

		if err := env.Store.SaveRecord(req.Context(), storedFrom(doc, rec)); err != nil {
			zap.L().Warn("persisting record failed", zap.Error(err))
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"document_id": doc.ID,
			"record":      rec,
		})
	})

	r.Get("/v1/stats", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"calibration": env.Calibrator.Statistics(),
			"corrections": env.Ledger.Statistics(),
		})
	})

	return r
}

// documentFromRequest reads a multipart upload: the document under "file",
// with optional "tenant" and "ocr_text" fields.
func documentFromRequest(req *http.Request) (model.Document, error) {
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return model.Document{}, eris.New("expected multipart form with a file part")
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		return model.Document{}, eris.New("file part is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return model.Document{}, eris.Wrap(err, "read upload")
	}
	if len(data) == 0 {
		return model.Document{}, eris.New("uploaded file is empty")
	}

	return model.Document{
		ID:       uuid.NewString(),
		Bytes:    data,
		MimeType: detectMime(header.Filename, data),
		Filename: header.Filename,
		Tenant:   req.FormValue("tenant"),
		OCRText:  req.FormValue("ocr_text"),
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
