package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/segyhp/bnpl-engine/internal/observability"
	"github.com/segyhp/bnpl-engine/pkg/response"
)

// NewRouter wires every endpoint. metrics may be nil to leave /metrics unmounted.
func NewRouter(bnpl *BNPLHandler, health *HealthHandler, metrics http.Handler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(
		observability.RequestIDMiddleware,
		observability.TracingMiddleware,
		observability.ZapLoggerMiddleware(logger),
		response.CORSMiddleware,
	)

	// Health check
	router.HandleFunc("/health", health.Health).Methods("GET")
	router.HandleFunc("/health/ready", health.Ready).Methods("GET")
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods("GET")
	}

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/applications", bnpl.CreateApplication).Methods("POST")
	api.HandleFunc("/applications/{applicationId}", bnpl.GetApplication).Methods("GET")
	api.HandleFunc("/applications/{applicationId}/decision", bnpl.ProcessApplication).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/cancel", bnpl.CancelApplication).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/default", bnpl.MarkDefaulted).Methods("POST")
	api.HandleFunc("/eligibility", bnpl.CheckEligibility).Methods("POST")
	api.HandleFunc("/installments/{installmentId}/payment", bnpl.PayInstallment).Methods("POST")

	api.HandleFunc("/owners/{ownerId}/applications", bnpl.ListApplications).Methods("GET")
	api.HandleFunc("/owners/{ownerId}/stats", bnpl.GetStats).Methods("GET")
	api.HandleFunc("/owners/{ownerId}/upcoming", bnpl.ListUpcoming).Methods("GET")

	// Operator routes
	internal := router.PathPrefix("/internal/v1").Subrouter()
	internal.HandleFunc("/sweeps", bnpl.RunSweep).Methods("POST")

	return router
}
