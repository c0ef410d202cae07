package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joeflack4/genonaut/common"
	"github.com/joeflack4/genonaut/internal/config"
	"github.com/joeflack4/genonaut/internal/dto"
	"github.com/joeflack4/genonaut/internal/events"
	"github.com/joeflack4/genonaut/internal/mocks"
	"github.com/joeflack4/genonaut/internal/models"
	"github.com/joeflack4/genonaut/internal/storage/postgres"
	"github.com/joeflack4/genonaut/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type jobReaderFunc func(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)

func (f jobReaderFunc) Get(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	return f(ctx, id)
}

func newTestRouter(svc JobServiceInterface, gw *events.Gateway) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	handler := NewJobHandler(svc, gw)
	r.POST("/jobs", handler.Create)
	r.GET("/jobs", handler.List)
	r.GET("/jobs/:id", handler.Get)
	r.POST("/jobs/:id/cancel", handler.Cancel)
	r.GET("/jobs/:id/events", handler.Events)
	return r
}

func TestJobHandler_Create(t *testing.T) {
	validBody := fmt.Sprintf(
		`{"user_id":%q,"prompt":"A scenic landscape","checkpoint_model":"m1","width":512,"height":512}`,
		uuid.New().String(),
	)

	tests := []struct {
		name           string
		body           string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
	}{
		{
			name: "successful job creation",
			body: validBody,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("CreateJob", mock.Anything, mock.Anything).
					Return(&dto.JobResponseDTO{ID: uuid.New(), Status: config.JobStatusQueued}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "invalid request body JSON",
			body:           "{invalid json}",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing required fields",
			body:           `{"prompt":"hi"}`,
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown checkpoint model",
			body: validBody,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("CreateJob", mock.Anything, mock.Anything).
					Return(nil, common.NewAPIError(http.StatusBadRequest, "unknown checkpoint model", map[string]any{
						"provided":  "nope",
						"available": []string{"m1"},
					}))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "database connection error",
			body: validBody,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("CreateJob", mock.Anything, mock.Anything).
					Return(nil, common.Errf(http.StatusInternalServerError, "failed to create job"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.JobServiceMock)
			tt.setupMock(mockService)

			req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			newTestRouter(mockService, nil).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Status code mismatch for test: %s", tt.name)
			mockService.AssertExpectations(t)
		})
	}
}

func TestJobHandler_Get(t *testing.T) {
	jobID := uuid.New()
	validResponse := &dto.JobResponseDTO{
		ID:     jobID,
		Status: config.JobStatusCompleted,
	}

	tests := []struct {
		name           string
		path           string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
	}{
		{
			name: "existing job",
			path: "/jobs/" + jobID.String(),
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("GetJob", mock.Anything, jobID).Return(validResponse, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "malformed id",
			path:           "/jobs/not-a-uuid",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing job",
			path: "/jobs/" + jobID.String(),
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("GetJob", mock.Anything, jobID).
					Return(nil, common.Errf(http.StatusNotFound, "job not found"))
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.JobServiceMock)
			tt.setupMock(mockService)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			newTestRouter(mockService, nil).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestJobHandler_Cancel(t *testing.T) {
	jobID := uuid.New()

	tests := []struct {
		name           string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
	}{
		{
			name: "cancel accepted",
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("CancelJob", mock.Anything, jobID).
					Return(&dto.JobResponseDTO{ID: jobID, Status: config.JobStatusCancelled}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "already terminal",
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("CancelJob", mock.Anything, jobID).
					Return(nil, common.Errf(http.StatusConflict, "job is already completed"))
			},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.JobServiceMock)
			tt.setupMock(mockService)

			req := httptest.NewRequest(http.MethodPost, "/jobs/"+jobID.String()+"/cancel", nil)
			w := httptest.NewRecorder()

			newTestRouter(mockService, nil).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestJobHandler_List(t *testing.T) {
	userID := uuid.New()

	t.Run("returns user jobs", func(t *testing.T) {
		mockService := new(mocks.JobServiceMock)
		mockService.On("ListJobs", mock.Anything, userID).
			Return([]dto.JobResponseDTO{{ID: uuid.New(), UserID: userID}}, nil)

		req := httptest.NewRequest(http.MethodGet, "/jobs?user_id="+userID.String(), nil)
		w := httptest.NewRecorder()

		newTestRouter(mockService, nil).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var jobs []dto.JobResponseDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
		assert.Len(t, jobs, 1)
	})

	t.Run("requires user_id", func(t *testing.T) {
		mockService := new(mocks.JobServiceMock)

		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
		w := httptest.NewRecorder()

		newTestRouter(mockService, nil).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// closeNotifyRecorder adds the http.CloseNotifier method gin's
// Context.Stream requires, which httptest.ResponseRecorder lacks.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
}

func (c *closeNotifyRecorder) CloseNotify() <-chan bool {
	return make(chan bool)
}

func TestJobHandler_Events(t *testing.T) {
	t.Run("terminal job streams one event and closes", func(t *testing.T) {
		jobID := uuid.New()
		contentID := uuid.New()
		reader := jobReaderFunc(func(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
			return &models.GenerationJob{
				ID:        jobID,
				Status:    config.JobStatusCompleted,
				ContentID: &contentID,
				UpdatedAt: time.Now(),
			}, nil
		})
		gw := events.NewGateway(events.NewBroadcaster(), reader, zerolog.Nop())

		req := httptest.NewRequest(http.MethodGet, "/jobs/"+jobID.String()+"/events", nil)
		w := &closeNotifyRecorder{httptest.NewRecorder()}

		newTestRouter(new(mocks.JobServiceMock), gw).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

		body := w.Body.String()
		assert.Equal(t, 1, strings.Count(body, "event:status"))
		assert.Contains(t, body, string(config.JobStatusCompleted))
	})

	t.Run("missing job yields 404", func(t *testing.T) {
		reader := jobReaderFunc(func(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
			return nil, postgres.ErrNotFound
		})
		gw := events.NewGateway(events.NewBroadcaster(), reader, zerolog.Nop())

		req := httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.New().String()+"/events", nil)
		w := httptest.NewRecorder()

		newTestRouter(new(mocks.JobServiceMock), gw).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
