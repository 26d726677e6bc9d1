package api

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	xhttp "SignalEngine/pkg/http"
	xlogger "SignalEngine/pkg/logger"
)

type PositionLister interface {
	Active() []models.Position
}

type SignalLister interface {
	List(symbol string, status models.SignalStatus, limit int) []models.Signal
}

type DedupInspector interface {
	Snapshot(symbol string) models.DedupSnapshot
}

// StatusHandler is the read-only operator API over the engine's state.
type StatusHandler struct {
	logger    *xlogger.Logger
	positions PositionLister
	signals   SignalLister
	guard     DedupInspector
	journal   domrepo.SignalJournal
	now       func() time.Time
}

var _ xhttp.Handler = (*StatusHandler)(nil)

// NewStatusHandler wires the handler. journal may be nil, in which case
// historical signal queries are rejected.
func NewStatusHandler(logger *xlogger.Logger, positions PositionLister, signals SignalLister, guard DedupInspector, journal domrepo.SignalJournal) *StatusHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &StatusHandler{
		logger:    logger.Component("status_api"),
		positions: positions,
		signals:   signals,
		guard:     guard,
		journal:   journal,
		now:       time.Now,
	}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/positions", h.Positions)
	g.GET("/signals", h.Signals)
	g.GET("/dedup", h.Dedup)
}

func (h *StatusHandler) Health(c echo.Context) error {
	if h.journal != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.journal.Health(ctx); err != nil {
			h.logger.Warn("journal health check failed", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.UnavailableError("journal unreachable").WithError(err))
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *StatusHandler) Positions(c echo.Context) error {
	req := &models.PositionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	rows := make([]models.Position, 0)
	for _, p := range h.positions.Active() {
		if symbol == "" || p.Symbol == symbol {
			rows = append(rows, p)
		}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Signals lists recent signals from memory. A from or to parameter reads
// the journal instead.
func (h *StatusHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	status := models.SignalStatus(req.Status)

	if req.From == "" && req.To == "" {
		rows := h.signals.List(symbol, status, req.Limit)
		return xhttp.ListResponse(c, rows, int64(len(rows)))
	}

	if h.journal == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("signal history is not configured"))
	}
	now := h.now()
	to := xhttp.ParseTimeDefault(req.To, now)
	from := xhttp.ParseTimeDefault(req.From, to.Add(-24*time.Hour))
	if !from.Before(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", "from must be before to"))
	}

	found, err := h.journal.QuerySignals(c.Request().Context(), symbol, from, to, req.Limit)
	if err != nil {
		h.logger.Error("journal query failed",
			xlogger.String("symbol", symbol),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, err)
	}
	rows := make([]*models.Signal, 0, len(found))
	for _, s := range found {
		if status == "" || s.Status == status {
			rows = append(rows, s)
		}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *StatusHandler) Dedup(c echo.Context) error {
	req := &models.DedupRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.guard.Snapshot(strings.ToUpper(req.Symbol)))
}
