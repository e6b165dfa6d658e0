package shipments_api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/BearBump/ShipTrack/internal/services/shipments"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200

	defaultSimulationPoints = 6
	defaultSimulationStepH  = 1
)

type ShipmentService interface {
	CreateShipment(ctx context.Context, in shipments.CreateShipmentInput) (*models.Shipment, error)
	GetShipment(ctx context.Context, tracking string) (*models.Shipment, error)
	ListShipments(ctx context.Context, limit, offset int) ([]*models.Shipment, error)
	DeleteShipment(ctx context.Context, tracking string) error
	AppendCheckpoint(ctx context.Context, in shipments.AppendCheckpointInput) (*models.Checkpoint, error)
	ListCheckpoints(ctx context.Context, tracking string) ([]*models.Checkpoint, error)
	ListStatusHistory(ctx context.Context, tracking string) ([]*models.StatusHistory, error)
	Subscribe(ctx context.Context, tracking, contact string) (*models.Subscriber, error)
	Unsubscribe(ctx context.Context, tracking, contact string) error
	ListSubscribers(ctx context.Context, tracking string, activeOnly bool) ([]*models.Subscriber, error)
}

type SimulationService interface {
	StartSimulation(ctx context.Context, tracking string, numPoints int, step time.Duration) (*models.SimulationState, error)
	PauseSimulation(ctx context.Context, tracking string) error
	ContinueSimulation(ctx context.Context, tracking string) error
	GetSimulation(ctx context.Context, tracking string) (*models.SimulationState, error)
}

type ShipmentsAPI struct {
	svc     ShipmentService
	sim     SimulationService
	metrics *metrics.Metrics
}

func New(svc ShipmentService, sim SimulationService) *ShipmentsAPI {
	return &ShipmentsAPI{svc: svc, sim: sim}
}

func (a *ShipmentsAPI) WithMetrics(m *metrics.Metrics) *ShipmentsAPI {
	a.metrics = m
	return a
}

// Routes: публичная часть под /api и админская под /api/admin.
// Авторизацию админки ставит внешний прокси.
func (a *ShipmentsAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(AccessLog(a.metrics))

	r.Route("/api/shipments", func(r chi.Router) {
		r.Get("/", a.listShipments)
		r.Post("/", a.createShipment)
		r.Route("/{tracking}", func(r chi.Router) {
			r.Get("/", a.getShipment)
			r.Get("/checkpoints", a.listCheckpoints)
			r.Post("/checkpoints", a.appendCheckpoint)
			r.Post("/subscribe", a.subscribe)
			r.Post("/unsubscribe", a.unsubscribe)
		})
	})

	r.Route("/api/admin/shipments", func(r chi.Router) {
		r.Get("/", a.adminListShipments)
		r.Route("/{tracking}", func(r chi.Router) {
			r.Delete("/", a.deleteShipment)
			r.Get("/history", a.listHistory)
			r.Get("/subscribers", a.listSubscribers)
			r.Post("/subscribers/remove", a.unsubscribe)
			r.Get("/simulation", a.getSimulation)
			r.Post("/simulation", a.startSimulation)
			r.Post("/simulation/pause", a.pauseSimulation)
			r.Post("/simulation/continue", a.continueSimulation)
		})
	})
	return r
}

func tracking(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "tracking"))
}

func (a *ShipmentsAPI) createShipment(w http.ResponseWriter, r *http.Request) {
	var in shipments.CreateShipmentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	sh, err := a.svc.CreateShipment(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toShipment(sh))
}

func (a *ShipmentsAPI) getShipment(w http.ResponseWriter, r *http.Request) {
	t := tracking(r)
	sh, err := a.svc.GetShipment(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cps, err := a.svc.ListCheckpoints(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := toShipment(sh)
	resp.Checkpoints = toCheckpoints(cps)
	writeJSON(w, r, http.StatusOK, resp)
}

func (a *ShipmentsAPI) listShipments(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := a.svc.ListShipments(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ShipmentResponse, 0, len(list))
	for _, sh := range list {
		out = append(out, toShipment(sh))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"shipments": out})
}

func (a *ShipmentsAPI) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	cps, err := a.svc.ListCheckpoints(r.Context(), tracking(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"checkpoints": toCheckpoints(cps)})
}

func (a *ShipmentsAPI) appendCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req checkpointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cp, err := a.svc.AppendCheckpoint(r.Context(), shipments.AppendCheckpointInput{
		Tracking: tracking(r),
		Location: req.Location,
		Label:    req.Label,
		Note:     req.Note,
		Status:   req.Status,
		ProofRef: req.ProofRef,
		Source:   shipments.SourceAPI,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toCheckpoint(cp))
}

func (a *ShipmentsAPI) subscribe(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := a.svc.Subscribe(r.Context(), tracking(r), req.Contact)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSubscriber(sub))
}

func (a *ShipmentsAPI) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.svc.Unsubscribe(r.Context(), tracking(r), req.Contact); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// adminListShipments отдаёт отправления вместе с чекпоинтами и всеми подписчиками.
func (a *ShipmentsAPI) adminListShipments(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := a.svc.ListShipments(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ShipmentResponse, 0, len(list))
	for _, sh := range list {
		cps, err := a.svc.ListCheckpoints(r.Context(), sh.TrackingNumber)
		if err != nil {
			writeError(w, r, err)
			return
		}
		subs, err := a.svc.ListSubscribers(r.Context(), sh.TrackingNumber, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := toShipment(sh)
		resp.Checkpoints = toCheckpoints(cps)
		resp.Subscribers = toSubscribers(subs)
		out = append(out, resp)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"shipments": out})
}

func (a *ShipmentsAPI) deleteShipment(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteShipment(r.Context(), tracking(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *ShipmentsAPI) listHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := a.svc.ListStatusHistory(r.Context(), tracking(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]StatusHistoryResponse, 0, len(hist))
	for _, h := range hist {
		out = append(out, StatusHistoryResponse{Status: h.Status, Note: h.Note, ChangedAt: h.ChangedAt})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"history": out})
}

func (a *ShipmentsAPI) listSubscribers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	subs, err := a.svc.ListSubscribers(r.Context(), tracking(r), activeOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"subscribers": toSubscribers(subs)})
}

func (a *ShipmentsAPI) startSimulation(w http.ResponseWriter, r *http.Request) {
	req := simulateRequest{NumPoints: defaultSimulationPoints, StepHours: defaultSimulationStepH}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	step := time.Duration(req.StepHours * float64(time.Hour))
	st, err := a.sim.StartSimulation(r.Context(), tracking(r), req.NumPoints, step)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toSimulation(st))
}

func (a *ShipmentsAPI) pauseSimulation(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.sim.PauseSimulation)
}

func (a *ShipmentsAPI) continueSimulation(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.sim.ContinueSimulation)
}

func (a *ShipmentsAPI) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	t := tracking(r)
	if err := fn(r.Context(), t); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := a.sim.GetSimulation(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSimulation(st))
}

func (a *ShipmentsAPI) getSimulation(w http.ResponseWriter, r *http.Request) {
	st, err := a.sim.GetSimulation(r.Context(), tracking(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSimulation(st))
}

func page(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()
	fields := map[string]string{}
	if v := q.Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n <= 0 || n > maxPageSize {
			fields["limit"] = "limit must be between 1 and " + strconv.Itoa(maxPageSize)
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			fields["offset"] = "offset must be a non-negative integer"
		}
		offset = n
	}
	if len(fields) > 0 {
		return 0, 0, apperrors.ValidationFields("validation failed", fields)
	}
	return limit, offset, nil
}
