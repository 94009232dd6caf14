package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/floorcast/internal/imagefile/imagetest"
	"github.com/kiranshivaraju/floorcast/internal/orchestrator"
	"github.com/kiranshivaraju/floorcast/internal/resolver"
	"github.com/kiranshivaraju/floorcast/internal/uploads"
	"github.com/kiranshivaraju/floorcast/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock JobService ---

type mockJobService struct {
	createFn func(ctx context.Context, p orchestrator.CreateParams) (*models.Job, error)
	getFn    func(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

func (m *mockJobService) CreateJob(ctx context.Context, p orchestrator.CreateParams) (*models.Job, error) {
	return m.createFn(ctx, p)
}

func (m *mockJobService) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return m.getFn(ctx, id)
}

func pendingJob(p orchestrator.CreateParams) *models.Job {
	now := time.Now().UTC()
	job := &models.Job{
		ID:            uuid.New(),
		Status:        models.JobStatusPending,
		FloorID:       p.FloorID,
		Source:        p.Source,
		PromptVersion: "floor-v1",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, ref := range p.InputRefs {
		job.Items = append(job.Items, models.Item{InputID: ref, Status: models.ItemStatusPending})
	}
	return job
}

// --- helpers ---

func jobReq(t *testing.T, body any) *http.Request {
	t.Helper()
	var b []byte
	switch v := body.(type) {
	case string:
		b = []byte(v)
	default:
		var err error
		b, err = json.Marshal(body)
		require.NoError(t, err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func withJobID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jobID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func parseData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Data
}

func parseErr(t *testing.T, rec *httptest.ResponseRecorder) (string, any) {
	t.Helper()
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details any    `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code, env.Error.Details
}

func validBody() map[string]any {
	return map[string]any{
		"floor_id":   "oak-wide-matte",
		"source":     "sample",
		"input_refs": []string{"living_03"},
	}
}

// ========================================
// POST /api/v1/jobs
// ========================================

func TestCreateJob_Accepted(t *testing.T) {
	var got orchestrator.CreateParams
	svc := &mockJobService{createFn: func(_ context.Context, p orchestrator.CreateParams) (*models.Job, error) {
		got = p
		return pendingJob(p), nil
	}}

	body := validBody()
	body["hints"] = []string{"herringbone"}
	r := jobReq(t, body)
	r.Header.Set(IdempotencyKeyHeader, "req-42")
	rec := httptest.NewRecorder()
	NewCreateJobHandler(svc, NewValidator())(rec, r)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	data := parseData(t, rec)
	assert.Equal(t, "PENDING", data["status"])
	assert.Equal(t, "oak-wide-matte", data["floor_id"])
	assert.NotEmpty(t, data["id"])

	assert.Equal(t, "oak-wide-matte", got.FloorID)
	assert.Equal(t, models.SourceSample, got.Source)
	assert.Equal(t, []string{"living_03"}, got.InputRefs)
	assert.Equal(t, []string{"herringbone"}, got.Hints)
	assert.Equal(t, "req-42", got.IdempotencyKey)
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	svc := &mockJobService{}
	rec := httptest.NewRecorder()
	NewCreateJobHandler(svc, NewValidator())(rec, jobReq(t, "{not json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := parseErr(t, rec)
	assert.Equal(t, "INVALID_REQUEST", code)
}

func TestCreateJob_UnknownFieldRejected(t *testing.T) {
	svc := &mockJobService{}
	body := validBody()
	body["priority"] = "high"
	rec := httptest.NewRecorder()
	NewCreateJobHandler(svc, NewValidator())(rec, jobReq(t, body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(map[string]any)
		wantField string
	}{
		{"missing floor", func(b map[string]any) { delete(b, "floor_id") }, "floor_id"},
		{"missing source", func(b map[string]any) { delete(b, "source") }, "source"},
		{"bad source", func(b map[string]any) { b["source"] = "camera" }, "source"},
		{"too many inputs", func(b map[string]any) { b["input_refs"] = make([]string, 21) }, "input_refs"},
		{"blank input", func(b map[string]any) { b["input_refs"] = []string{""} }, "input_refs[0]"},
		{"hint too long", func(b map[string]any) { b["hints"] = []string{strings.Repeat("x", 1001)} }, "hints[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockJobService{createFn: func(context.Context, orchestrator.CreateParams) (*models.Job, error) {
				called = true
				return nil, nil
			}}
			body := validBody()
			tt.mutate(body)

			rec := httptest.NewRecorder()
			NewCreateJobHandler(svc, NewValidator())(rec, jobReq(t, body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			code, details := parseErr(t, rec)
			assert.Equal(t, "VALIDATION_ERROR", code)
			assert.Contains(t, fmt.Sprint(details), tt.wantField)
			assert.False(t, called, "service must not be called for invalid requests")
		})
	}
}

func TestCreateJob_EmptyInputsReachService(t *testing.T) {
	for name, mutate := range map[string]func(map[string]any){
		"empty list":    func(b map[string]any) { b["input_refs"] = []string{} },
		"missing field": func(b map[string]any) { delete(b, "input_refs") },
	} {
		t.Run(name, func(t *testing.T) {
			var got orchestrator.CreateParams
			svc := &mockJobService{createFn: func(_ context.Context, p orchestrator.CreateParams) (*models.Job, error) {
				got = p
				return nil, resolver.ErrEmptyInput
			}}
			body := validBody()
			mutate(body)

			rec := httptest.NewRecorder()
			NewCreateJobHandler(svc, NewValidator())(rec, jobReq(t, body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			code, _ := parseErr(t, rec)
			assert.Equal(t, "EMPTY_INPUT", code)
			assert.Empty(t, got.InputRefs)
			assert.Equal(t, "oak-wide-matte", got.FloorID)
		})
	}
}

func TestCreateJob_IdempotencyKeyTooLong(t *testing.T) {
	svc := &mockJobService{}
	r := jobReq(t, validBody())
	r.Header.Set(IdempotencyKeyHeader, strings.Repeat("k", 256))
	rec := httptest.NewRecorder()
	NewCreateJobHandler(svc, NewValidator())(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_ServiceErrors(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantErr  string
	}{
		{fmt.Errorf("%w: marble-x", resolver.ErrUnknownProduct), http.StatusUnprocessableEntity, "UNKNOWN_FLOOR"},
		{fmt.Errorf("%w: garage_99", resolver.ErrUnknownSample), http.StatusUnprocessableEntity, "UNKNOWN_SAMPLE"},
		{fmt.Errorf("%w: abc.png", resolver.ErrUnknownUpload), http.StatusUnprocessableEntity, "UNKNOWN_UPLOAD"},
		{resolver.ErrEmptyInput, http.StatusBadRequest, "EMPTY_INPUT"},
		{resolver.ErrInvalidSource, http.StatusBadRequest, "INVALID_SOURCE"},
		{orchestrator.ErrHintsMismatch, http.StatusBadRequest, "HINTS_MISMATCH"},
		{orchestrator.ErrRequestInFlight, http.StatusConflict, "REQUEST_IN_FLIGHT"},
		{errors.New("creating job: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.wantErr, func(t *testing.T) {
			svc := &mockJobService{createFn: func(context.Context, orchestrator.CreateParams) (*models.Job, error) {
				return nil, tt.err
			}}
			rec := httptest.NewRecorder()
			NewCreateJobHandler(svc, NewValidator())(rec, jobReq(t, validBody()))

			assert.Equal(t, tt.wantCode, rec.Code)
			code, _ := parseErr(t, rec)
			assert.Equal(t, tt.wantErr, code)
		})
	}
}

// ========================================
// GET /api/v1/jobs/{jobID}
// ========================================

func TestGetJob_OK(t *testing.T) {
	job := pendingJob(orchestrator.CreateParams{FloorID: "oak-wide-matte", Source: models.SourceSample, InputRefs: []string{"living_03"}})
	job.Status = models.JobStatusDone
	job.Items[0].Status = models.ItemStatusDone
	job.Items[0].OutputRef = "/outputs/living_03__oak-wide-matte_abc.png"

	svc := &mockJobService{getFn: func(_ context.Context, id uuid.UUID) (*models.Job, error) {
		assert.Equal(t, job.ID, id)
		return job, nil
	}}

	r := withJobID(httptest.NewRequest(http.MethodGet, "/", nil), job.ID.String())
	rec := httptest.NewRecorder()
	NewGetJobHandler(svc)(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "DONE", data["status"])
	items := data["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "/outputs/living_03__oak-wide-matte_abc.png", items[0].(map[string]any)["output_ref"])
}

func TestGetJob_ErrorStatusIsStill200(t *testing.T) {
	msg := "interrupted by restart"
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusError, Error: &msg}
	svc := &mockJobService{getFn: func(context.Context, uuid.UUID) (*models.Job, error) { return job, nil }}

	rec := httptest.NewRecorder()
	NewGetJobHandler(svc)(rec, withJobID(httptest.NewRequest(http.MethodGet, "/", nil), job.ID.String()))

	require.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "ERROR", data["status"])
	assert.Equal(t, msg, data["error"])
}

func TestGetJob_NotFound(t *testing.T) {
	svc := &mockJobService{getFn: func(context.Context, uuid.UUID) (*models.Job, error) {
		return nil, orchestrator.ErrNotFound
	}}
	rec := httptest.NewRecorder()
	NewGetJobHandler(svc)(rec, withJobID(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString()))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	code, _ := parseErr(t, rec)
	assert.Equal(t, "JOB_NOT_FOUND", code)
}

func TestGetJob_InvalidID(t *testing.T) {
	svc := &mockJobService{}
	rec := httptest.NewRecorder()
	NewGetJobHandler(svc)(rec, withJobID(httptest.NewRequest(http.MethodGet, "/", nil), "not-a-uuid"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := parseErr(t, rec)
	assert.Equal(t, "INVALID_JOB_ID", code)
}

func TestGetJob_StoreError(t *testing.T) {
	svc := &mockJobService{getFn: func(context.Context, uuid.UUID) (*models.Job, error) {
		return nil, errors.New("connection reset")
	}}
	rec := httptest.NewRecorder()
	NewGetJobHandler(svc)(rec, withJobID(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ========================================
// Catalog listings
// ========================================

type fakeCatalog struct {
	products []models.Product
	samples  []models.Sample
}

func (c *fakeCatalog) ListProducts() []models.Product { return c.products }
func (c *fakeCatalog) ListSamples() []models.Sample   { return c.samples }

func TestListFloors(t *testing.T) {
	c := &fakeCatalog{products: []models.Product{{
		ID: "oak-wide-matte", Name: "Oak Wide Matte", Collection: "Timber",
		PromptFragment: "secret prompt text", ReferenceImages: []string{"/srv/catalog/oak.png"},
	}}}
	rec := httptest.NewRecorder()
	NewListFloorsHandler(c)(rec, httptest.NewRequest(http.MethodGet, "/api/v1/floors", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"id":"oak-wide-matte"`)
	assert.Contains(t, body, `"collection":"Timber"`)
	assert.NotContains(t, body, "secret prompt text")
	assert.NotContains(t, body, "/srv/catalog")
	assert.Contains(t, body, `"count":1`)
}

func TestListSamples(t *testing.T) {
	c := &fakeCatalog{samples: []models.Sample{
		{ID: "living_03", Name: "Living room", Image: "/srv/samples/living_03.jpg"},
		{ID: "kitchen_01", Name: "Kitchen", Image: "/srv/samples/kitchen_01.jpg"},
	}}
	rec := httptest.NewRecorder()
	NewListSamplesHandler(c)(rec, httptest.NewRequest(http.MethodGet, "/api/v1/samples", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"living_03"`)
	assert.NotContains(t, rec.Body.String(), "/srv/samples")
	assert.Contains(t, rec.Body.String(), `"count":2`)
}

func TestListSamples_Empty(t *testing.T) {
	rec := httptest.NewRecorder()
	NewListSamplesHandler(&fakeCatalog{})(rec, httptest.NewRequest(http.MethodGet, "/api/v1/samples", nil))

	assert.JSONEq(t, `{"data":[],"meta":{"count":0}}`, rec.Body.String())
}

// ========================================
// POST /api/v1/uploads
// ========================================

func uploadReq(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(field, "room.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func newUploadStore(t *testing.T, maxBytes int64) *uploads.Store {
	t.Helper()
	s, err := uploads.NewStore(t.TempDir(), maxBytes)
	require.NoError(t, err)
	return s
}

func TestUpload_Created(t *testing.T) {
	store := newUploadStore(t, 1<<20)
	rec := httptest.NewRecorder()
	NewUploadHandler(store, 1<<20)(rec, uploadReq(t, UploadFormField, imagetest.PNG(t)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ref := parseData(t, rec)["ref"].(string)
	assert.True(t, strings.HasSuffix(ref, ".png"))
	assert.True(t, store.Exists(ref))
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		data     []byte
		wantCode int
		wantErr  string
	}{
		{"unsupported type", UploadFormField, []byte("%PDF-1.4 not an image"), http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"},
		{"empty", UploadFormField, nil, http.StatusBadRequest, "EMPTY_UPLOAD"},
		{"missing field", "photo", []byte("whatever"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"too large", UploadFormField, append(imagetest.PNG(t), make([]byte, 2048)...), http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newUploadStore(t, 1024)
			rec := httptest.NewRecorder()
			NewUploadHandler(store, 1024)(rec, uploadReq(t, tt.field, tt.data))

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			code, _ := parseErr(t, rec)
			assert.Equal(t, tt.wantErr, code)
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	store := newUploadStore(t, 1024)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", strings.NewReader("raw bytes"))
	r.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	NewUploadHandler(store, 1024)(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := parseErr(t, rec)
	assert.Equal(t, "INVALID_REQUEST", code)
}
