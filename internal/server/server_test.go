package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Bens368/IGIA/internal/config"
	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/storage"
	"github.com/Bens368/IGIA/internal/survey"
)

type fakeModels struct {
	mu      sync.Mutex
	reply   string
	verdict string
	chunks  []string
	keys    []string
	prompts []string
}

func (f *fakeModels) ExtractTable(ctx context.Context, imagePath string) (string, error) {
	return f.reply, nil
}

func (f *fakeModels) VisionModel() string { return "fake-vision" }

func (f *fakeModels) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.verdict, nil
}

func (f *fakeModels) TextModel() string { return "fake-text" }

func (f *fakeModels) StreamChat(ctx context.Context, messages []domain.ChatMessage, ch chan<- string) error {
	for _, c := range f.chunks {
		ch <- c
	}
	return nil
}

func (f *fakeModels) factory(apiKey string) (Models, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, apiKey)
	return f, nil
}

func (f *fakeModels) usedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

type fakeRasterizer struct {
	dir string
}

func (r *fakeRasterizer) Rasterize(ctx context.Context, docs []domain.Document) ([]domain.RasterImage, error) {
	images := make([]domain.RasterImage, 0, len(docs))
	for i, doc := range docs {
		images = append(images, domain.RasterImage{
			Position:   i + 1,
			SourceName: doc.Name,
			Path:       filepath.Join(r.dir, fmt.Sprintf("%s_page_%02d.jpg", doc.BaseName(), i+1)),
		})
	}
	return images, nil
}

type testEnv struct {
	server *httptest.Server
	models *fakeModels
	cfg    *config.Config
}

func newTestEnv(t *testing.T, withHistory bool) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Aggregate.Path = filepath.Join(dir, "ingredients.csv")
	cfg.Recipes.Path = filepath.Join(dir, "missing.xlsx")
	cfg.LLM.APIKey = "config-key"

	models := &fakeModels{
		reply:   `{"item":["Poulet","Riz"],"price":["8,99 $","2/5$"]}`,
		verdict: "Poulet rôti",
		chunks:  []string{"Bonjour", ", première question"},
	}

	deps := Deps{
		Config:    cfg,
		NewModels: models.factory,
		NewRasterizer: func(outputDir string) (domain.Rasterizer, error) {
			return &fakeRasterizer{dir: outputDir}, nil
		},
		Sessions:     survey.NewStore(0, 0),
		Instructions: "Q1. Comment collectez-vous vos données?",
	}

	if withHistory {
		ctx := context.Background()
		db, err := storage.Open(ctx, "sqlite", ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		require.NoError(t, storage.Migrate(ctx, db))
		deps.Runs = storage.NewRunRepository(db)
	}

	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, models: models, cfg: cfg}
}

type upload struct {
	field string
	name  string
	data  []byte
}

func (e *testEnv) postRun(t *testing.T, bearer string, files ...upload) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/v1/runs", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func flyers(names ...string) []upload {
	out := make([]upload, 0, len(names))
	for _, n := range names {
		out = append(out, upload{field: "documents", name: n, data: []byte("%PDF-1.4")})
	}
	return out
}

func workbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Recettes"))
	rows := [][]interface{}{
		{"Recette", "Protéine", "Ingrédients", "Semaine"},
		{"Poulet rôti", "Poulet", "poulet, riz, oignon", 12},
		{"Chili", "Boeuf", "boeuf, haricots, tomate", 3},
	}
	for i, row := range rows {
		r := row
		require.NoError(t, f.SetSheetRow("Recettes", fmt.Sprintf("A%d", i+1), &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "healthy", body["status"])
}

func TestCreateRun_UploadScenario(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.postRun(t, "", flyers("IGA_other.pdf", "IGA_W2.pdf", "IGA_raddar_1.pdf", "notes.txt")...)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	run := decode[RunResponse](t, resp)
	assert.Equal(t, domain.RunExtracted, run.Status)
	assert.Equal(t, []string{"IGA_raddar_1.pdf", "IGA_W2.pdf", "IGA_other.pdf"}, run.Documents)
	assert.Equal(t, 3, run.Images)
	assert.Equal(t, 3, run.Tables)
	assert.Equal(t, 6, run.Rows)
	assert.Len(t, run.Items, 6)
	assert.Empty(t, run.Failures)
	assert.Nil(t, run.Match, "no recipes uploaded or configured")
	assert.Equal(t, []string{"config-key"}, env.models.usedKeys())

	// the run is stored with its rows
	listResp, err := http.Get(env.server.URL + "/api/v1/runs")
	require.NoError(t, err)
	defer listResp.Body.Close()
	list := decode[map[string][]storage.RunRecord](t, listResp)
	require.Len(t, list["runs"], 1)
	assert.Equal(t, run.ID, list["runs"][0].ID)

	getResp, err := http.Get(env.server.URL + "/api/v1/runs/" + run.ID.String())
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	detail := decode[RunDetail](t, getResp)
	assert.Len(t, detail.Items, 6)
	assert.Equal(t, "Poulet", detail.Items[0].Name)
}

func TestCreateRun_WithRecipes(t *testing.T) {
	env := newTestEnv(t, false)

	files := append(flyers("IGA_raddar_1.pdf"), upload{field: "recipes", name: "recettes.xlsx", data: workbook(t)})
	resp := env.postRun(t, "request-key", files...)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	run := decode[RunResponse](t, resp)
	assert.Equal(t, domain.RunMatched, run.Status)
	require.NotNil(t, run.Match)
	assert.Equal(t, "Poulet rôti", run.Match.Text)
	assert.Equal(t, 2, run.Match.Total)
	assert.Equal(t, 1, run.Match.Evaluated)
	assert.Equal(t, []string{"request-key"}, env.models.usedKeys())
}

func TestCreateRun_Errors(t *testing.T) {
	t.Run("nothing matches the naming rules", func(t *testing.T) {
		env := newTestEnv(t, true)
		resp := env.postRun(t, "", flyers("metro.pdf")...)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		run := decode[RunResponse](t, resp)
		assert.Equal(t, domain.RunFailed, run.Status)
		assert.NotEmpty(t, run.Error)
		assert.Empty(t, run.Items)
	})

	t.Run("every reply rejected", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.models.reply = `{"item":["Poulet"],"price":[]}`
		resp := env.postRun(t, "", flyers("IGA_raddar_1.pdf", "IGA_W2.pdf")...)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		run := decode[RunResponse](t, resp)
		assert.Equal(t, domain.RunFailed, run.Status)
		require.Len(t, run.Failures, 2)
		assert.Equal(t, 1, run.Failures[0].Position)
		assert.Equal(t, 2, run.Failures[1].Position)
	})

	t.Run("missing api key", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.cfg.LLM.APIKey = ""
		resp := env.postRun(t, "", flyers("IGA_raddar_1.pdf")...)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, env.models.usedKeys())
	})

	t.Run("not multipart", func(t *testing.T) {
		env := newTestEnv(t, false)
		resp, err := http.Post(env.server.URL+"/api/v1/runs", "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRunHistory(t *testing.T) {
	tests := []struct {
		name        string
		withHistory bool
		path        string
		wantStatus  int
	}{
		{"disabled list", false, "/api/v1/runs", http.StatusNotImplemented},
		{"disabled get", false, "/api/v1/runs/6f1c1a2e-0000-4000-8000-000000000000", http.StatusNotImplemented},
		{"invalid id", true, "/api/v1/runs/not-a-uuid", http.StatusBadRequest},
		{"unknown id", true, "/api/v1/runs/6f1c1a2e-0000-4000-8000-000000000000", http.StatusNotFound},
		{"invalid limit", true, "/api/v1/runs?limit=zero", http.StatusBadRequest},
		{"empty list", true, "/api/v1/runs?limit=5", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.withHistory)
			resp, err := http.Get(env.server.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func createSession(t *testing.T, env *testEnv, bearer string) SessionDTO {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/survey/sessions", nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[SessionDTO](t, resp)
}

func sendMessage(t *testing.T, env *testEnv, sessionID, content string) (*http.Response, string) {
	t.Helper()
	body, err := json.Marshal(MessageRequest{Content: content})
	require.NoError(t, err)
	resp, err := http.Post(env.server.URL+"/api/v1/survey/sessions/"+sessionID+"/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestSurvey_StreamsReply(t *testing.T) {
	env := newTestEnv(t, false)

	session := createSession(t, env, "session-key")
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "gpt-3.5-turbo", session.Model)
	assert.Empty(t, session.Messages, "seeded messages are hidden")

	resp, stream := sendMessage(t, env, session.ID, "Bonjour")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t,
		"data: {\"delta\":\"Bonjour\"}\n\n"+
			"data: {\"delta\":\", première question\"}\n\n"+
			"data: [DONE]\n\n",
		stream)
	assert.Equal(t, []string{"session-key"}, env.models.usedKeys())

	getResp, err := http.Get(env.server.URL + "/api/v1/survey/sessions/" + session.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	transcript := decode[SessionDTO](t, getResp)
	assert.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Bonjour"},
		{Role: domain.RoleAssistant, Content: "Bonjour, première question"},
	}, transcript.Messages)
}

func TestSurvey_FallsBackToConfiguredKey(t *testing.T) {
	env := newTestEnv(t, false)
	session := createSession(t, env, "")

	resp, _ := sendMessage(t, env, session.ID, "Salut")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"config-key"}, env.models.usedKeys())
}

func TestSurvey_Errors(t *testing.T) {
	env := newTestEnv(t, false)
	session := createSession(t, env, "")

	resp, _ := sendMessage(t, env, session.ID, "   ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = sendMessage(t, env, "unknown", "Bonjour")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	getResp, err := http.Get(env.server.URL + "/api/v1/survey/sessions/unknown")
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)

	env.cfg.LLM.APIKey = ""
	resp, _ = sendMessage(t, env, session.ID, "Bonjour")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer sk-123", "sk-123"},
		{"Bearer  sk-123 ", "sk-123"},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, bearerToken(req), tt.header)
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.InputError("x", nil)))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(domain.ExtractionError("x", domain.ErrNoTables)))
	assert.Equal(t, http.StatusBadGateway, statusFor(domain.APIError("x", nil)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
}
