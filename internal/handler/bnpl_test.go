package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/bnpl-engine/internal/domain"
	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

func setupRouter(t *testing.T, health *HealthHandler) (*MockBNPLService, http.Handler) {
	t.Helper()
	svc := &MockBNPLService{}
	if health == nil {
		health = NewHealthHandler(stubPinger{}, nil, time.Second)
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bnpl_up 1\n"))
	})
	router := NewRouter(NewBNPLHandler(svc, svc, svc, svc), health, metrics, zap.NewNop())
	t.Cleanup(func() { svc.AssertExpectations(t) })
	return svc, router
}

func doRequest(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestBNPLHandler_CreateApplication(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*MockBNPLService)
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "created",
			requestBody: map[string]interface{}{
				"owner_id":          "owner-1",
				"purchase_amount":   120000,
				"installment_count": 6,
				"interest_rate":     "5",
			},
			setupMock: func(svc *MockBNPLService) {
				svc.On("CreateApplication", mock.Anything, mock.MatchedBy(func(req *domain.CreateApplicationRequest) bool {
					return req.OwnerID == "owner-1" &&
						req.PurchaseAmount == 120000 &&
						req.InstallmentCount == 6 &&
						req.InterestRate != nil && req.InterestRate.Equal(decimal.NewFromInt(5))
				})).Return(&domain.Application{
					ID:                uuid.New(),
					OwnerID:           "owner-1",
					Status:            domain.ApplicationStatusPending,
					InstallmentAmount: 20500,
				}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "explicit zero rate is passed through",
			requestBody: map[string]interface{}{"owner_id": "owner-1", "purchase_amount": 1000, "installment_count": 2, "interest_rate": 0},
			setupMock: func(svc *MockBNPLService) {
				svc.On("CreateApplication", mock.Anything, mock.MatchedBy(func(req *domain.CreateApplicationRequest) bool {
					return req.InterestRate != nil && req.InterestRate.IsZero()
				})).Return(&domain.Application{ID: uuid.New(), OwnerID: "owner-1", Status: domain.ApplicationStatusPending}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "omitted rate is left for the default",
			requestBody: map[string]interface{}{"owner_id": "owner-1", "purchase_amount": 1000, "installment_count": 2},
			setupMock: func(svc *MockBNPLService) {
				svc.On("CreateApplication", mock.Anything, mock.MatchedBy(func(req *domain.CreateApplicationRequest) bool {
					return req.InterestRate == nil
				})).Return(&domain.Application{ID: uuid.New(), OwnerID: "owner-1", Status: domain.ApplicationStatusPending}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing owner fails validation",
			requestBody:    map[string]interface{}{"purchase_amount": 1000, "installment_count": 2},
			setupMock:      func(*MockBNPLService) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeValidation,
		},
		{
			name:           "down payment must be below purchase",
			requestBody:    map[string]interface{}{"owner_id": "owner-1", "purchase_amount": 1000, "down_payment": 1000, "installment_count": 2},
			setupMock:      func(*MockBNPLService) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeValidation,
		},
		{
			name:        "service validation error",
			requestBody: map[string]interface{}{"owner_id": "owner-1", "purchase_amount": 1000, "installment_count": 30},
			setupMock: func(svc *MockBNPLService) {
				svc.On("CreateApplication", mock.Anything, mock.Anything).
					Return(nil, customError.WrapValidation("installment_count", "must be at most 24")).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeValidation,
		},
		{
			name:        "database failure hides details",
			requestBody: map[string]interface{}{"owner_id": "owner-1", "purchase_amount": 1000, "installment_count": 2},
			setupMock: func(svc *MockBNPLService) {
				svc.On("CreateApplication", mock.Anything, mock.Anything).
					Return(nil, customError.WrapDatabaseError(errors.New("dial tcp 10.0.0.5:5432"))).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   customError.ErrCodeDatabaseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, router := setupRouter(t, nil)
			tt.setupMock(svc)

			w := doRequest(router, http.MethodPost, "/api/v1/applications", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			env := decodeEnvelope(t, w)
			assert.Equal(t, tt.expectedStatus < 300, env.Success)
			assert.Equal(t, tt.expectedCode, env.Code)
			assert.NotContains(t, env.Error, "10.0.0.5")
		})
	}
}

func TestBNPLHandler_CreateApplication_MalformedJSON(t *testing.T) {
	_, router := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBNPLHandler_ProcessApplication(t *testing.T) {
	id := uuid.New()
	score := 720

	tests := []struct {
		name           string
		path           string
		setupMock      func(*MockBNPLService)
		expectedStatus int
	}{
		{
			name: "approved",
			path: "/api/v1/applications/" + id.String() + "/decision",
			setupMock: func(svc *MockBNPLService) {
				svc.On("ProcessApplication", mock.Anything, id).Return(&domain.DecisionResponse{
					ApplicationID: id,
					Approved:      true,
					Status:        domain.ApplicationStatusActive,
					RiskLevel:     domain.RiskLevelLow,
					CreditScore:   &score,
					Terms:         &domain.Terms{InstallmentAmount: 20500, FinalInstallment: 20500},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "already decided",
			path: "/api/v1/applications/" + id.String() + "/decision",
			setupMock: func(svc *MockBNPLService) {
				svc.On("ProcessApplication", mock.Anything, id).
					Return(nil, customError.WrapAlreadyDecided(id.String(), "ACTIVE")).Once()
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "unknown application",
			path: "/api/v1/applications/" + id.String() + "/decision",
			setupMock: func(svc *MockBNPLService) {
				svc.On("ProcessApplication", mock.Anything, id).
					Return(nil, customError.WrapApplicationNotFound(id.String())).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "malformed id",
			path:           "/api/v1/applications/not-a-uuid/decision",
			setupMock:      func(*MockBNPLService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, router := setupRouter(t, nil)
			tt.setupMock(svc)

			w := doRequest(router, http.MethodPost, tt.path, nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestBNPLHandler_ProcessApplication_ResponseBody(t *testing.T) {
	svc, router := setupRouter(t, nil)
	id := uuid.New()
	svc.On("ProcessApplication", mock.Anything, id).Return(&domain.DecisionResponse{
		ApplicationID: id,
		Approved:      false,
		Status:        domain.ApplicationStatusCancelled,
		RiskLevel:     domain.RiskLevelHigh,
		DenialReason:  "requested amount $1,000.01 exceeds the HIGH risk limit of $1,000.00",
	}, nil).Once()

	w := doRequest(router, http.MethodPost, "/api/v1/applications/"+id.String()+"/decision", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var decision domain.DecisionResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &decision))
	assert.False(t, decision.Approved)
	assert.Nil(t, decision.Terms)
	assert.Nil(t, decision.CreditScore)
	assert.Equal(t, domain.RiskLevelHigh, decision.RiskLevel)
}

func TestBNPLHandler_PayInstallment(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name           string
		body           interface{}
		setupMock      func(*MockBNPLService)
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "paid",
			body: domain.PayInstallmentRequest{PaymentMethod: "card", TransactionID: "tx-1"},
			setupMock: func(svc *MockBNPLService) {
				svc.On("PayInstallment", mock.Anything, id, &domain.PayInstallmentRequest{PaymentMethod: "card", TransactionID: "tx-1"}).
					Return(&domain.PaymentResponse{
						Installment: &domain.Installment{ID: id, Status: domain.InstallmentStatusPaid},
						Application: &domain.Application{Status: domain.ApplicationStatusActive},
					}, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "empty body is accepted",
			setupMock: func(svc *MockBNPLService) {
				svc.On("PayInstallment", mock.Anything, id, &domain.PayInstallmentRequest{}).
					Return(&domain.PaymentResponse{
						Installment: &domain.Installment{ID: id, Status: domain.InstallmentStatusPaid},
						Application: &domain.Application{Status: domain.ApplicationStatusCompleted},
					}, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "already paid is a conflict, not a validation error",
			body: domain.PayInstallmentRequest{},
			setupMock: func(svc *MockBNPLService) {
				svc.On("PayInstallment", mock.Anything, id, mock.Anything).
					Return(nil, customError.WrapAlreadyPaid(id.String())).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   customError.ErrCodeAlreadyPaid,
		},
		{
			name: "application not active",
			body: domain.PayInstallmentRequest{},
			setupMock: func(svc *MockBNPLService) {
				svc.On("PayInstallment", mock.Anything, id, mock.Anything).
					Return(nil, customError.WrapApplicationNotActive(uuid.NewString(), "DEFAULTED")).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   customError.ErrCodeApplicationNotActive,
		},
		{
			name: "unknown installment",
			body: domain.PayInstallmentRequest{},
			setupMock: func(svc *MockBNPLService) {
				svc.On("PayInstallment", mock.Anything, id, mock.Anything).
					Return(nil, customError.WrapInstallmentNotFound(id.String())).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   customError.ErrCodeInstallmentNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, router := setupRouter(t, nil)
			tt.setupMock(svc)

			var w *httptest.ResponseRecorder
			if tt.body == nil {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/installments/"+id.String()+"/payment", nil)
				w = httptest.NewRecorder()
				router.ServeHTTP(w, req)
			} else {
				w = doRequest(router, http.MethodPost, "/api/v1/installments/"+id.String()+"/payment", tt.body)
			}

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCode, decodeEnvelope(t, w).Code)
		})
	}
}

func TestBNPLHandler_CancelAndDefault(t *testing.T) {
	id := uuid.New()

	t.Run("cancel without body", func(t *testing.T) {
		svc, router := setupRouter(t, nil)
		svc.On("CancelApplication", mock.Anything, id, "").
			Return(&domain.Application{ID: id, Status: domain.ApplicationStatusCancelled}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/"+id.String()+"/cancel", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("cancel an active application", func(t *testing.T) {
		svc, router := setupRouter(t, nil)
		svc.On("CancelApplication", mock.Anything, id, "changed my mind").
			Return(nil, customError.WrapInvalidTransition("application "+id.String(), "ACTIVE", "CANCELLED")).Once()

		w := doRequest(router, http.MethodPost, "/api/v1/applications/"+id.String()+"/cancel", domain.CancelApplicationRequest{Reason: "changed my mind"})

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("default requires a reason", func(t *testing.T) {
		_, router := setupRouter(t, nil)

		w := doRequest(router, http.MethodPost, "/api/v1/applications/"+id.String()+"/default", domain.MarkDefaultedRequest{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("default", func(t *testing.T) {
		svc, router := setupRouter(t, nil)
		svc.On("MarkDefaulted", mock.Anything, id, "3 missed payments").
			Return(&domain.Application{ID: id, Status: domain.ApplicationStatusDefaulted}, nil).Once()

		w := doRequest(router, http.MethodPost, "/api/v1/applications/"+id.String()+"/default", domain.MarkDefaultedRequest{Reason: "3 missed payments"})

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestBNPLHandler_OwnerQueries(t *testing.T) {
	t.Run("list passes filter through", func(t *testing.T) {
		svc, router := setupRouter(t, nil)
		svc.On("ListApplications", mock.Anything, domain.ApplicationFilter{
			OwnerID: "owner-1",
			Status:  domain.ApplicationStatusActive,
			Limit:   5,
			Offset:  10,
		}).Return([]*domain.Application{{OwnerID: "owner-1"}}, nil).Once()

		w := doRequest(router, http.MethodGet, "/api/v1/owners/owner-1/applications?status=active&limit=5&offset=10", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("non-numeric limit", func(t *testing.T) {
		_, router := setupRouter(t, nil)

		w := doRequest(router, http.MethodGet, "/api/v1/owners/owner-1/applications?limit=ten", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("stats", func(t *testing.T) {
		svc, router := setupRouter(t, nil)
		svc.On("GetStats", mock.Anything, "owner-1").
			Return(&domain.Stats{OwnerID: "owner-1", TotalApplications: 3, RemainingBalance: 102500}, nil).Once()

		w := doRequest(router, http.MethodGet, "/api/v1/owners/owner-1/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var stats domain.Stats
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &stats))
		assert.Equal(t, int64(102500), stats.RemainingBalance)
	})

	t.Run("upcoming", func(t *testing.T) {
		svc, router := setupRouter(t, nil)
		svc.On("ListUpcoming", mock.Anything, "owner-1", 14).Return([]*domain.Installment{}, nil).Once()

		w := doRequest(router, http.MethodGet, "/api/v1/owners/owner-1/upcoming?within_days=14", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestBNPLHandler_Eligibility(t *testing.T) {
	svc, router := setupRouter(t, nil)
	svc.On("CheckEligibility", mock.Anything, &domain.EligibilityRequest{OwnerID: "owner-1", PurchaseAmount: 250001}).
		Return(&domain.EligibilityResponse{OwnerID: "owner-1", Eligible: false, RiskLevel: domain.RiskLevelMedium, MaxAllowed: 250000}, nil).Once()

	w := doRequest(router, http.MethodPost, "/api/v1/eligibility", domain.EligibilityRequest{OwnerID: "owner-1", PurchaseAmount: 250001})

	require.Equal(t, http.StatusOK, w.Code)
	var eligibility domain.EligibilityResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &eligibility))
	assert.False(t, eligibility.Eligible)
	assert.Equal(t, int64(250000), eligibility.MaxAllowed)
}

func TestBNPLHandler_RunSweep(t *testing.T) {
	svc, router := setupRouter(t, nil)
	svc.On("Run", mock.Anything).Return(&domain.SweepResult{Scanned: 3, MarkedOverdue: 2, Skipped: 1, LateFeesAssessed: 2000}, nil).Once()

	w := doRequest(router, http.MethodPost, "/internal/v1/sweeps", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var result domain.SweepResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.Equal(t, 2, result.MarkedOverdue)
	assert.Equal(t, int64(2000), result.LateFeesAssessed)
}

func TestRouter_RequestIDAndMetrics(t *testing.T) {
	_, router := setupRouter(t, nil)

	w := doRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = doRequest(router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bnpl_up")
}

func TestHealthHandler_Ready(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		_, router := setupRouter(t, NewHealthHandler(stubPinger{}, nil, time.Second))

		w := doRequest(router, http.MethodGet, "/health/ready", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("store down", func(t *testing.T) {
		_, router := setupRouter(t, NewHealthHandler(stubPinger{err: errors.New("connection refused")}, nil, time.Second))

		w := doRequest(router, http.MethodGet, "/health/ready", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var status HealthStatus
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &status))
		assert.Equal(t, "error", status.Status)
		assert.Contains(t, status.Checks["database"], "connection refused")
	})
}
