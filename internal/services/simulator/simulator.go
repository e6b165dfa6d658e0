package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/BearBump/ShipTrack/internal/services/shipments"
	"github.com/google/uuid"
)

const (
	MinPoints       = 2
	MaxPoints       = 10
	MinStepDuration = time.Hour
	MaxStepDuration = 24 * time.Hour
)

type Repository interface {
	GetShipment(ctx context.Context, tracking string) (*models.Shipment, error)
	CreateSimulation(ctx context.Context, st *models.SimulationState) error
	GetSimulation(ctx context.Context, tracking string) (*models.SimulationState, error)
	SetSimulationStatus(ctx context.Context, tracking, from, to string) (bool, error)
	SaveSimulationProgress(ctx context.Context, tracking string, p models.SimulationProgress) (bool, error)
	ListSimulationsByStatus(ctx context.Context, status string) ([]*models.SimulationState, error)
}

// CheckpointAppender: Lifecycle Manager: шаг симуляции проходит тот же путь,
// что и чекпоинт из API (позиция, статус, уведомления).
type CheckpointAppender interface {
	AppendCheckpoint(ctx context.Context, in shipments.AppendCheckpointInput) (*models.Checkpoint, error)
}

type loop struct {
	// resume выставляет ContinueSimulation, если цикл ещё жив: вместо выхода он перечитает состояние.
	resume bool
}

type Simulator struct {
	repo     Repository
	appender CheckpointAppender
	metrics  *metrics.Metrics

	tick  time.Duration
	rnd   Rand
	rndMu sync.Mutex
	now   func() time.Time

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	loops map[string]*loop

	startedAtUnixNano int64
	totalSteps        atomic.Int64
	totalErrors       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(repo Repository, appender CheckpointAppender) *Simulator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Simulator{
		repo:              repo,
		appender:          appender,
		tick:              2 * time.Second,
		rnd:               rand.New(rand.NewSource(time.Now().UnixNano())),
		now:               func() time.Time { return time.Now().UTC() },
		rootCtx:           ctx,
		cancel:            cancel,
		loops:             make(map[string]*loop),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

// WithTick задаёт реальную паузу между шагами (виртуальное время идёт шагами StepDuration).
func (s *Simulator) WithTick(tick time.Duration) *Simulator {
	if tick > 0 {
		s.tick = tick
	}
	return s
}

func (s *Simulator) WithRand(r Rand) *Simulator {
	if r != nil {
		s.rnd = r
	}
	return s
}

func (s *Simulator) WithClock(now func() time.Time) *Simulator {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Simulator) WithMetrics(m *metrics.Metrics) *Simulator {
	s.metrics = m
	return s
}

func (s *Simulator) StartSimulation(ctx context.Context, tracking string, numPoints int, stepDuration time.Duration) (*models.SimulationState, error) {
	fields := map[string]string{}
	if numPoints < MinPoints || numPoints > MaxPoints {
		fields["num_points"] = fmt.Sprintf("num_points must be between %d and %d", MinPoints, MaxPoints)
	}
	if stepDuration < MinStepDuration || stepDuration > MaxStepDuration {
		fields["step_hours"] = fmt.Sprintf("step must be between %s and %s", MinStepDuration, MaxStepDuration)
	}
	if len(fields) > 0 {
		return nil, apperrors.ValidationFields("validation failed", fields)
	}

	sh, err := s.repo.GetShipment(ctx, tracking)
	if err != nil {
		return nil, err
	}
	if sh.Status == models.ShipmentStatusDelivered {
		return nil, apperrors.InvalidState("shipment %q is already delivered", tracking)
	}

	s.rndMu.Lock()
	waypoints := GenerateWaypoints(sh.Origin, sh.Destination, numPoints, s.rnd)
	s.rndMu.Unlock()

	st := &models.SimulationState{
		TrackingNumber: sh.TrackingNumber,
		RunID:          uuid.NewString(),
		Status:         models.SimulationStatusRunning,
		CurrentIndex:   0,
		Waypoints:      waypoints,
		TotalPoints:    len(waypoints),
		StepDuration:   stepDuration,
		VirtualClock:   s.now(),
	}
	if err := s.repo.CreateSimulation(ctx, st); err != nil {
		return nil, err
	}

	slog.Info("simulation started", "tracking", tracking, "run_id", st.RunID, "points", st.TotalPoints, "step", stepDuration.String())
	s.spawn(tracking)
	return st, nil
}

// PauseSimulation переводит running → paused. Цикл увидит это на границе шага.
func (s *Simulator) PauseSimulation(ctx context.Context, tracking string) error {
	ok, err := s.repo.SetSimulationStatus(ctx, tracking, models.SimulationStatusRunning, models.SimulationStatusPaused)
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionError(ctx, tracking, "pause", models.SimulationStatusRunning)
	}
	slog.Info("simulation paused", "tracking", tracking)
	return nil
}

// ContinueSimulation переводит paused → running и продолжает с сохранённой позиции.
func (s *Simulator) ContinueSimulation(ctx context.Context, tracking string) error {
	ok, err := s.repo.SetSimulationStatus(ctx, tracking, models.SimulationStatusPaused, models.SimulationStatusRunning)
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionError(ctx, tracking, "continue", models.SimulationStatusPaused)
	}
	slog.Info("simulation continued", "tracking", tracking)
	s.spawn(tracking)
	return nil
}

func (s *Simulator) GetSimulation(ctx context.Context, tracking string) (*models.SimulationState, error) {
	return s.repo.GetSimulation(ctx, tracking)
}

// ResumeRunning поднимает циклы для всех симуляций, оставшихся running после рестарта.
func (s *Simulator) ResumeRunning(ctx context.Context) (int, error) {
	states, err := s.repo.ListSimulationsByStatus(ctx, models.SimulationStatusRunning)
	if err != nil {
		return 0, err
	}
	for _, st := range states {
		s.spawn(st.TrackingNumber)
	}
	if len(states) > 0 {
		slog.Info("simulations resumed", "count", len(states))
	}
	return len(states), nil
}

// Run поднимает незавершённые симуляции и держит их до отмены ctx.
func (s *Simulator) Run(ctx context.Context) error {
	if _, err := s.ResumeRunning(ctx); err != nil {
		slog.Error("resume simulations", "error", err.Error())
	}
	<-ctx.Done()
	s.Close()
	return ctx.Err()
}

// Close останавливает все циклы. Состояние в БД остаётся running и будет подхвачено при следующем старте.
func (s *Simulator) Close() {
	s.cancel()
	s.wg.Wait()
}

type Stats struct {
	StartedAt   time.Time `json:"startedAt"`
	ActiveLoops int       `json:"activeLoops"`
	TotalSteps  int64     `json:"totalSteps"`
	TotalErrors int64     `json:"totalErrors"`
	LastError   string    `json:"lastError,omitempty"`
}

func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	active := len(s.loops)
	s.mu.Unlock()

	st := Stats{
		StartedAt:   time.Unix(0, s.startedAtUnixNano).UTC(),
		ActiveLoops: active,
		TotalSteps:  s.totalSteps.Load(),
		TotalErrors: s.totalErrors.Load(),
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Simulator) transitionError(ctx context.Context, tracking, op, want string) error {
	st, err := s.repo.GetSimulation(ctx, tracking)
	if err != nil {
		return err
	}
	return apperrors.InvalidState("cannot %s simulation for %q: status is %s, want %s", op, tracking, st.Status, want)
}

// spawn запускает цикл, если для трек-номера его ещё нет; иначе просит живой цикл не выходить.
func (s *Simulator) spawn(tracking string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rootCtx.Err() != nil {
		return
	}
	if l, ok := s.loops[tracking]; ok {
		l.resume = true
		return
	}
	l := &loop{}
	s.loops[tracking] = l
	s.wg.Add(1)
	s.metrics.SimulationStarted()
	go s.run(tracking, l)
}

// exit снимает цикл с регистрации. false, если был запрошен resume, и цикл должен продолжить.
func (s *Simulator) exit(tracking string, l *loop) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.resume && s.rootCtx.Err() == nil {
		l.resume = false
		return false
	}
	delete(s.loops, tracking)
	s.metrics.SimulationStopped()
	return true
}

func (s *Simulator) run(tracking string, l *loop) {
	defer s.wg.Done()
	ctx := s.rootCtx

	for {
		if s.step(ctx, tracking) && sleepCtx(ctx, s.tick) {
			continue
		}
		if s.exit(tracking, l) {
			return
		}
	}
}

// step выполняет одну итерацию. true, если есть следующие шаги и цикл должен продолжаться.
func (s *Simulator) step(ctx context.Context, tracking string) bool {
	st, err := s.repo.GetSimulation(ctx, tracking)
	if err != nil {
		if ctx.Err() == nil {
			s.recordError(tracking, err)
		}
		return false
	}
	if st.Status != models.SimulationStatusRunning || st.Done() {
		return false
	}

	idx := st.CurrentIndex
	wp := st.Waypoints[idx]
	status := StatusForStep(idx, st.TotalPoints)

	_, err = s.appender.AppendCheckpoint(ctx, shipments.AppendCheckpointInput{
		Tracking: tracking,
		Location: shipments.LocationInput{Coordinates: &wp},
		Label:    fmt.Sprintf("Checkpoint %d", idx+1),
		Status:   &status,
		At:       st.VirtualClock,
		Source:   shipments.SourceSimulator,
	})
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.recordError(tracking, err)
		// паркуем симуляцию: админ может продолжить её после устранения причины
		if _, perr := s.repo.SetSimulationStatus(context.WithoutCancel(ctx), tracking, models.SimulationStatusRunning, models.SimulationStatusPaused); perr != nil {
			s.recordError(tracking, perr)
		}
		return false
	}

	completed := idx+1 >= st.TotalPoints
	ok, err := s.repo.SaveSimulationProgress(context.WithoutCancel(ctx), tracking, models.SimulationProgress{
		FromIndex:    idx,
		ToIndex:      idx + 1,
		VirtualClock: st.VirtualClock.Add(st.StepDuration),
		Completed:    completed,
	})
	if err != nil {
		s.recordError(tracking, err)
		return false
	}
	if !ok {
		slog.Warn("simulation progress moved concurrently", "tracking", tracking, "index", idx)
		return false
	}

	s.totalSteps.Add(1)
	s.metrics.SimulationStep()
	slog.Info("simulation step", "tracking", tracking, "checkpoint", idx+1, "of", st.TotalPoints, "status", status)
	if completed {
		slog.Info("simulation completed", "tracking", tracking, "run_id", st.RunID)
		return false
	}
	return true
}

func (s *Simulator) recordError(tracking string, err error) {
	s.totalErrors.Add(1)
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
	slog.Error("simulation step failed", "tracking", tracking, "error", err.Error())
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
