package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mpslytherin/accounts/internal/models"
	pkghttp "github.com/mpslytherin/accounts/pkg/http"
)

const diagnosticsTimeout = 5 * time.Second

// SchemaInspector is satisfied by *database.DB
type SchemaInspector interface {
	Ping(ctx context.Context) error
	DescribeSchema(ctx context.Context) ([]models.TableInfo, error)
}

// DiagnosticsHandler reports database reachability
type DiagnosticsHandler struct {
	db     SchemaInspector
	logger *slog.Logger
}

func NewDiagnosticsHandler(db SchemaInspector, logger *slog.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{db: db, logger: logger}
}

type SchemaDTO struct {
	Tables []models.TableInfo `json:"tables"`
}

type ConnectionResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Schema  SchemaDTO `json:"schema"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// CheckConnection handles GET /check-connection
// @Summary Database round-trip with a listing of the schema
// @Produce json
// @Success 200 {object} ConnectionResponse
// @Failure 503 {object} pkghttp.ErrorResponse
// @Router /check-connection [get]
func (h *DiagnosticsHandler) CheckConnection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), diagnosticsTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("database ping failed", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Database connection failed")
		return
	}

	tables, err := h.db.DescribeSchema(ctx)
	if err != nil {
		h.logger.Error("failed to describe schema", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Database connection failed")
		return
	}
	if tables == nil {
		tables = []models.TableInfo{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, ConnectionResponse{
		Success: true,
		Message: "Database connection successful",
		Schema:  SchemaDTO{Tables: tables},
	})
}

// Health handles GET /health
func (h *DiagnosticsHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), diagnosticsTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", slog.Any("error", err))
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: "unreachable"})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}
