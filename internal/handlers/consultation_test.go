package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medscribe/medscribe-backend/internal/handlers"
	"github.com/medscribe/medscribe-backend/internal/middleware"
	"github.com/medscribe/medscribe-backend/internal/platform/apierr"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/server"
	"github.com/medscribe/medscribe-backend/internal/services"
	"github.com/medscribe/medscribe-backend/internal/types"
)

type fakeConsultationService struct {
	consultation *types.Consultation
	err          error
}

func (f *fakeConsultationService) Create(_ context.Context, _ services.CreateConsultationInput) (*types.Consultation, error) {
	return f.consultation, f.err
}

func (f *fakeConsultationService) Get(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*types.Consultation, error) {
	return f.consultation, f.err
}

func (f *fakeConsultationService) List(_ context.Context, _ uuid.UUID, _ string, _ int) ([]*types.Consultation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*types.Consultation{f.consultation}, nil
}

func (f *fakeConsultationService) Document(_ context.Context, _ uuid.UUID, _ uuid.UUID) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("%PDF-fake"), "consultation_test_12345678.pdf", nil
}

func (f *fakeConsultationService) ProcessPipeline(_ context.Context, _ uuid.UUID) {}

func (f *fakeConsultationService) MarkFailed(_ context.Context, _ uuid.UUID, _ string, _ error) {}

type fakeReviewService struct {
	consultation *types.Consultation
	err          error
}

func (f *fakeReviewService) Edit(_ context.Context, _ uuid.UUID, _ uuid.UUID, _ *types.Note, _ string) (*types.Consultation, error) {
	return f.consultation, f.err
}

func (f *fakeReviewService) Approve(_ context.Context, _ uuid.UUID, _ uuid.UUID, _ *types.Note) (*types.Consultation, error) {
	return f.consultation, f.err
}

func (f *fakeReviewService) Reject(_ context.Context, _ uuid.UUID, _ uuid.UUID, _ string) (*types.Consultation, error) {
	return f.consultation, f.err
}

func (f *fakeReviewService) History(_ context.Context, _ uuid.UUID, _ uuid.UUID) ([]*types.EditHistoryEntry, error) {
	return nil, f.err
}

func newTestRouter(t *testing.T, cs services.ConsultationService, rs services.ReviewService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return server.NewRouter(server.RouterConfig{
		ConsultationHandler: handlers.NewConsultationHandler(cs, rs),
		IdentityMiddleware:  middleware.NewIdentityMiddleware(log),
		AllowOrigins:        []string{"http://localhost:3000"},
	})
}

func doRequest(router *gin.Engine, method, path, userID string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMissingIdentityHeader(t *testing.T) {
	router := newTestRouter(t, &fakeConsultationService{}, &fakeReviewService{})

	w := doRequest(router, http.MethodGet, "/api/consultations", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestMalformedIdentityHeader(t *testing.T) {
	router := newTestRouter(t, &fakeConsultationService{}, &fakeReviewService{})

	w := doRequest(router, http.MethodGet, "/api/consultations", "not-a-uuid", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestGetInvalidID(t *testing.T) {
	router := newTestRouter(t, &fakeConsultationService{}, &fakeReviewService{})

	w := doRequest(router, http.MethodGet, "/api/consultations/banana", uuid.NewString(), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var env handlers.ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != apierr.CodeValidation {
		t.Fatalf("code = %q, want %q", env.Error.Code, apierr.CodeValidation)
	}
}

func TestGetFailedConsultationShowsGenericMessage(t *testing.T) {
	failed := &types.Consultation{
		ID:          uuid.New(),
		Status:      types.StatusFailed,
		ErrorDetail: "transcription: grpc: internal credential detail",
	}
	router := newTestRouter(t, &fakeConsultationService{consultation: failed}, &fakeReviewService{})

	w := doRequest(router, http.MethodGet, "/api/consultations/"+failed.ID.String(), uuid.NewString(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "re-record") {
		t.Fatalf("body missing generic failure message: %s", body)
	}
	if strings.Contains(body, "credential") {
		t.Fatal("internal error detail leaked to the wire")
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apierr.NotFound(fmt.Errorf("missing")), http.StatusNotFound},
		{"conflict", apierr.Conflict(fmt.Errorf("busy")), http.StatusConflict},
		{"budget", apierr.BudgetExceeded(fmt.Errorf("cap hit")), http.StatusPaymentRequired},
		{"external", apierr.ExternalService(fmt.Errorf("down")), http.StatusBadGateway},
		{"untyped", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &fakeConsultationService{err: tt.err}, &fakeReviewService{})
			w := doRequest(router, http.MethodGet, "/api/consultations/"+uuid.NewString(), uuid.NewString(), "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestUpdateNoteRequiresBody(t *testing.T) {
	router := newTestRouter(t, &fakeConsultationService{}, &fakeReviewService{})

	w := doRequest(router, http.MethodPut, "/api/consultations/"+uuid.NewString()+"/note", uuid.NewString(), `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing note", w.Code)
	}
}

func TestDocumentDownloadHeaders(t *testing.T) {
	router := newTestRouter(t, &fakeConsultationService{}, &fakeReviewService{})

	w := doRequest(router, http.MethodGet, "/api/consultations/"+uuid.NewString()+"/document", uuid.NewString(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content-type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "consultation_test_12345678.pdf") {
		t.Fatalf("content-disposition = %q", cd)
	}
}

func TestHealthcheck(t *testing.T) {
	router := newTestRouter(t, &fakeConsultationService{}, &fakeReviewService{})

	w := doRequest(router, http.MethodGet, "/healthcheck", "", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthcheck = %d %q", w.Code, w.Body.String())
	}
}
