package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/extract"
	"github.com/Bens368/IGIA/internal/observability"
	"github.com/Bens368/IGIA/internal/recipes"
	"github.com/Bens368/IGIA/internal/storage"
)

// multipartMemory is how much of an upload is held in memory before spilling to disk.
const multipartMemory = 32 << 20

// RunHandler handles flyer pipeline requests.
type RunHandler struct {
	deps   Deps
	logger *observability.Logger
}

// NewRunHandler creates a new run handler.
func NewRunHandler(deps Deps) *RunHandler {
	return &RunHandler{deps: deps, logger: deps.Logger.WithOperation("runs")}
}

// RunResponse is the summary returned for a run executed by this request.
type RunResponse struct {
	storage.RunRecord
	Items []domain.ItemRow    `json:"items"`
	Match *domain.MatchResult `json:"match,omitempty"`
}

// RunDetail is a stored run with its aggregate rows.
type RunDetail struct {
	storage.RunRecord
	Items []storage.ItemRecord `json:"items"`
}

// Create handles POST /api/v1/runs.
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg := h.deps.Config

	if cfg.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.Server.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	apiKey := bearerToken(r)
	if apiKey == "" {
		apiKey = cfg.LLM.APIKey
	}
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing API key", "send Authorization: Bearer <key>")
		return
	}
	models, err := h.deps.NewModels(apiKey)
	if err != nil {
		writeError(w, statusFor(err), "failed to create model client", err.Error())
		return
	}

	docs, err := readDocuments(r.MultipartForm.File["documents"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded documents", err.Error())
		return
	}

	run := domain.NewRun(docs)
	runDir := filepath.Join(filepath.Dir(cfg.Aggregate.Path), "runs", run.ID.String())
	logger := h.logger.WithRun(run.ID.String())

	rasterizer, err := h.deps.NewRasterizer(filepath.Join(runDir, "images"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create rasterizer", err.Error())
		return
	}

	service := extract.NewService(extract.Config{
		Rules:         cfg.Selector.Rules(),
		AggregatePath: filepath.Join(runDir, "ingredients.csv"),
	}, rasterizer, models, h.deps.Cache, h.deps.Logger)

	if err := service.Process(ctx, run, nil); err != nil {
		h.finish(w, r, run, err)
		return
	}

	recipesPath, err := h.recipesPath(r, runDir)
	if err != nil {
		run.Fail(err)
		h.finish(w, r, run, err)
		return
	}
	if recipesPath != "" {
		matcher := recipes.NewMatcher(models, recipes.Options{
			Sheet:       cfg.Recipes.SheetSpec(),
			EvaluateAll: cfg.Recipes.EvaluateAll || r.FormValue("evaluate_all") == "true",
		}, h.deps.Logger)
		if _, err := matcher.Match(ctx, run, recipesPath); err != nil {
			run.Fail(err)
			h.finish(w, r, run, err)
			return
		}
	}

	logger.Info().Str("status", string(run.Status)).Int("rows", run.Aggregate.Len()).Msg("Run finished")
	h.finish(w, r, run, nil)
}

// finish stores run when history is enabled and writes its summary.
func (h *RunHandler) finish(w http.ResponseWriter, r *http.Request, run *domain.Run, runErr error) {
	if h.deps.Runs != nil {
		if err := h.deps.Runs.Save(r.Context(), run); err != nil {
			h.logger.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to store run")
		}
	}

	resp := RunResponse{RunRecord: storage.NewRecord(run), Match: run.Match, Items: []domain.ItemRow{}}
	if run.Aggregate != nil {
		resp.Items = run.Aggregate.Rows
	}

	status := http.StatusOK
	if runErr != nil {
		status = statusFor(runErr)
	}
	writeJSON(w, status, resp)
}

// recipesPath returns the uploaded workbook saved under runDir, or the
// configured one when it exists. An empty path means no matching.
func (h *RunHandler) recipesPath(r *http.Request, runDir string) (string, error) {
	if files := r.MultipartForm.File["recipes"]; len(files) > 0 {
		path := filepath.Join(runDir, "recipes.xlsx")
		if err := saveUpload(files[0], path); err != nil {
			return "", err
		}
		return path, nil
	}

	configured := h.deps.Config.Recipes.Path
	if configured == "" {
		return "", nil
	}
	if _, err := os.Stat(configured); err != nil {
		return "", nil
	}
	return configured, nil
}

// List handles GET /api/v1/runs.
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		writeError(w, http.StatusNotImplemented, "run history is disabled", "")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = n
	}

	records, err := h.deps.Runs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

// Get handles GET /api/v1/runs/{runID}.
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		writeError(w, http.StatusNotImplemented, "run history is disabled", "")
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid runID", err.Error())
		return
	}

	record, err := h.deps.Runs.Get(r.Context(), runID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found", runID.String())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run", err.Error())
		return
	}

	items, err := h.deps.Runs.Items(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run items", err.Error())
		return
	}
	if items == nil {
		items = []storage.ItemRecord{}
	}
	writeJSON(w, http.StatusOK, RunDetail{RunRecord: *record, Items: items})
}

func readDocuments(files []*multipart.FileHeader) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.Document{Name: filepath.Base(fh.Filename), Content: content})
	}
	return docs, nil
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return domain.IOError("Failed to open uploaded recipes", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return domain.IOError("Failed to create run directory", err)
	}
	dst, err := os.Create(path)
	if err != nil {
		return domain.IOError("Failed to save uploaded recipes", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return domain.IOError("Failed to save uploaded recipes", err)
	}
	if err := dst.Close(); err != nil {
		return domain.IOError("Failed to save uploaded recipes", err)
	}
	return nil
}
