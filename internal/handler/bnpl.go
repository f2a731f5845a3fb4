package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/segyhp/bnpl-engine/internal/domain"
	customError "github.com/segyhp/bnpl-engine/pkg/errors"
	"github.com/segyhp/bnpl-engine/pkg/response"
)

// ApplicationManager is the application lifecycle as seen by the API.
type ApplicationManager interface {
	CreateApplication(ctx context.Context, req *domain.CreateApplicationRequest) (*domain.Application, error)
	ProcessApplication(ctx context.Context, id uuid.UUID) (*domain.DecisionResponse, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*domain.ApplicationDetails, error)
	ListApplications(ctx context.Context, filter domain.ApplicationFilter) ([]*domain.Application, error)
	CancelApplication(ctx context.Context, id uuid.UUID, reason string) (*domain.Application, error)
	MarkDefaulted(ctx context.Context, id uuid.UUID, reason string) (*domain.Application, error)
	CheckEligibility(ctx context.Context, req *domain.EligibilityRequest) (*domain.EligibilityResponse, error)
}

type PaymentProcessor interface {
	PayInstallment(ctx context.Context, installmentID uuid.UUID, req *domain.PayInstallmentRequest) (*domain.PaymentResponse, error)
}

type OverdueSweeper interface {
	Run(ctx context.Context) (*domain.SweepResult, error)
}

type StatsReader interface {
	GetStats(ctx context.Context, ownerID string) (*domain.Stats, error)
	ListUpcoming(ctx context.Context, ownerID string, withinDays int) ([]*domain.Installment, error)
}

type BNPLHandler struct {
	applications ApplicationManager
	payments     PaymentProcessor
	sweeper      OverdueSweeper
	stats        StatsReader
	validator    *validator.Validate
}

func NewBNPLHandler(applications ApplicationManager, payments PaymentProcessor, sweeper OverdueSweeper, stats StatsReader) *BNPLHandler {
	return &BNPLHandler{
		applications: applications,
		payments:     payments,
		sweeper:      sweeper,
		stats:        stats,
		validator:    validator.New(),
	}
}

// CreateApplication handles POST /api/v1/applications
func (h *BNPLHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateApplicationRequest
	if !h.decode(w, r, &req) {
		return
	}

	app, err := h.applications.CreateApplication(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Created(w, app)
}

// ProcessApplication handles POST /api/v1/applications/{applicationId}/decision
func (h *BNPLHandler) ProcessApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "applicationId")
	if !ok {
		return
	}

	decision, err := h.applications.ProcessApplication(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, decision)
}

// GetApplication handles GET /api/v1/applications/{applicationId}
func (h *BNPLHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "applicationId")
	if !ok {
		return
	}

	details, err := h.applications.GetApplication(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, details)
}

// CancelApplication handles POST /api/v1/applications/{applicationId}/cancel
func (h *BNPLHandler) CancelApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "applicationId")
	if !ok {
		return
	}

	var req domain.CancelApplicationRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	app, err := h.applications.CancelApplication(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, app)
}

// MarkDefaulted handles POST /api/v1/applications/{applicationId}/default
func (h *BNPLHandler) MarkDefaulted(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "applicationId")
	if !ok {
		return
	}

	var req domain.MarkDefaultedRequest
	if !h.decode(w, r, &req) {
		return
	}

	app, err := h.applications.MarkDefaulted(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, app)
}

// ListApplications handles GET /api/v1/owners/{ownerId}/applications
func (h *BNPLHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.ApplicationFilter{
		OwnerID: mux.Vars(r)["ownerId"],
		Status:  domain.ApplicationStatus(strings.ToUpper(query.Get("status"))),
	}

	var ok bool
	if filter.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}

	apps, err := h.applications.ListApplications(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, apps)
}

// CheckEligibility handles POST /api/v1/eligibility
func (h *BNPLHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var req domain.EligibilityRequest
	if !h.decode(w, r, &req) {
		return
	}

	eligibility, err := h.applications.CheckEligibility(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, eligibility)
}

// PayInstallment handles POST /api/v1/installments/{installmentId}/payment
func (h *BNPLHandler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "installmentId")
	if !ok {
		return
	}

	var req domain.PayInstallmentRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	payment, err := h.payments.PayInstallment(r.Context(), id, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, payment)
}

// GetStats handles GET /api/v1/owners/{ownerId}/stats
func (h *BNPLHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetStats(r.Context(), mux.Vars(r)["ownerId"])
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, stats)
}

// ListUpcoming handles GET /api/v1/owners/{ownerId}/upcoming
func (h *BNPLHandler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	withinDays, ok := queryInt(w, r, "within_days")
	if !ok {
		return
	}

	installments, err := h.stats.ListUpcoming(r.Context(), mux.Vars(r)["ownerId"], withinDays)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, installments)
}

// RunSweep handles POST /internal/v1/sweeps
func (h *BNPLHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *BNPLHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.ErrorWithCode(w, http.StatusBadRequest, customError.ErrCodeValidation, "Invalid request body", err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		response.ErrorWithCode(w, http.StatusBadRequest, customError.ErrCodeValidation, "Validation failed", err)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		response.ErrorWithCode(w, http.StatusBadRequest, customError.ErrCodeValidation, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		response.ErrorWithCode(w, http.StatusBadRequest, customError.ErrCodeValidation, "Invalid "+name, err)
		return 0, false
	}
	return n, true
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := customError.CodeOf(err)

	switch {
	case errors.Is(err, customError.ErrValidation):
		response.ErrorWithCode(w, http.StatusBadRequest, code, "Validation failed", err)
	case errors.Is(err, customError.ErrApplicationNotFound), errors.Is(err, customError.ErrInstallmentNotFound):
		response.ErrorWithCode(w, http.StatusNotFound, code, "Resource not found", err)
	case errors.Is(err, customError.ErrAlreadyPaid),
		errors.Is(err, customError.ErrAlreadyDecided),
		errors.Is(err, customError.ErrInvalidTransition),
		errors.Is(err, customError.ErrApplicationNotActive):
		response.ErrorWithCode(w, http.StatusConflict, code, "Request conflicts with current state", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ErrorWithCode(w, http.StatusServiceUnavailable, code, "Request cancelled", err)
	default:
		// Internal details stay in the logs.
		response.InternalServerError(w, code)
	}
}
