package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/fitlink/internal/device"
	"github.com/srg/fitlink/internal/gatt"
	"github.com/srg/fitlink/internal/groutine"
	"github.com/srg/fitlink/internal/planapi"
)

// ErrClosed is returned by operations on a closed coordinator.
var ErrClosed = errors.New("telemetry coordinator closed")

// PlanGenerator sends plan generation requests.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, req planapi.GenerateRequest) (*planapi.GenerateResponse, error)
}

// Sink receives every decoded reading, for example to republish it.
type Sink interface {
	PublishHeartRate(id device.Identity, r gatt.HeartRateReading)
	PublishSteps(id device.Identity, r gatt.StepReading)
}

// Options configures a Coordinator.
type Options struct {
	Provider device.CentralProvider
	Plans    PlanGenerator
	Profile  Profile // overrides of the built-in profile defaults
	Selector device.ServiceSelector
	Sinks    []Sink
	Logger   *logrus.Logger

	// Session timeouts, zero for the device package defaults.
	Session device.Options
}

// Coordinator owns one device session and the metrics collected from it.
// Triggers arrive through RequestConnect and RequestGeneratePlan and are
// handled by Run.
type Coordinator struct {
	logger  *logrus.Logger
	session *device.Session
	plans   PlanGenerator
	profile Profile
	sinks   []Sink

	metrics metricsStore
	status  *statusBoard

	mu       sync.RWMutex
	selector device.ServiceSelector
	identity *device.Identity

	connectCh chan struct{}
	planCh    chan *Profile

	ctx       context.Context
	cancel    context.CancelFunc
	lifeMu    sync.Mutex // orders handler and operation registration against Close
	handlers  groutine.Group
	inflight  sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a coordinator with an idle session.
func New(opts Options) (*Coordinator, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("telemetry: no central provider")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if _, _, err := opts.Selector.Normalized(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		logger:    opts.Logger,
		plans:     opts.Plans,
		profile:   opts.Profile.WithDefaults(DefaultProfile()),
		sinks:     opts.Sinks,
		status:    newStatusBoard(),
		selector:  opts.Selector,
		connectCh: make(chan struct{}, 1),
		planCh:    make(chan *Profile, 1),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	sessionOpts := opts.Session
	sessionOpts.Logger = opts.Logger
	sessionOpts.Listener = &sessionListener{c: c}
	c.session = device.NewSession(opts.Provider, sessionOpts)
	return c, nil
}

// ----------------------------
// Triggers
// ----------------------------

// RequestConnect queues a connect. Returns false when a connect is already
// pending or the coordinator is closed.
func (c *Coordinator) RequestConnect() bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.connectCh <- struct{}{}:
		return true
	default:
		c.logger.Warn("Connect already pending, request dropped")
		return false
	}
}

// RequestGeneratePlan queues a plan request. profile may be nil for the
// defaults. Returns false when a plan request is already pending or the
// coordinator is closed.
func (c *Coordinator) RequestGeneratePlan(profile *Profile) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.planCh <- profile:
		return true
	default:
		c.logger.Warn("Plan generation already pending, request dropped")
		return false
	}
}

// Run dispatches queued triggers until ctx is done or the coordinator is
// closed. Each trigger is handled on its own named goroutine.
func (c *Coordinator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	c.logger.Debug("Telemetry coordinator running")
	for {
		select {
		case <-runCtx.Done():
			if c.closed.Load() {
				return ErrClosed
			}
			return ctx.Err()
		case <-c.connectCh:
			c.spawn(runCtx, "telemetry-connect", func(ctx context.Context) {
				_ = c.Connect(ctx)
			})
		case profile := <-c.planCh:
			c.spawn(runCtx, "telemetry-generate-plan", func(ctx context.Context) {
				_, _ = c.GeneratePlan(ctx, profile)
			})
		}
	}
}

// spawn starts a trigger handler unless the coordinator is closed.
func (c *Coordinator) spawn(ctx context.Context, name string, fn func(ctx context.Context)) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.closed.Load() {
		return
	}
	c.handlers.Go(ctx, name, fn)
}

// enter registers an operation that Close waits for. The returned context
// is cancelled when ctx is done or the coordinator closes.
func (c *Coordinator) enter(ctx context.Context) (context.Context, func(), error) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.closed.Load() {
		return nil, nil, ErrClosed
	}
	c.inflight.Add(1)

	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
		c.inflight.Done()
	}, nil
}

// ----------------------------
// Operations
// ----------------------------

// Connect runs one connect attempt with the current selector. Failures are
// rendered into the status and returned.
func (c *Coordinator) Connect(ctx context.Context) error {
	ctx, done, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer done()
	sel := c.Selector()

	c.logger.WithFields(logrus.Fields{
		"custom_service":        sel.CustomServiceID,
		"custom_characteristic": sel.CustomCharacteristicID,
	}).Info("Connect requested")

	err = c.session.Connect(ctx, sel)
	if err == nil {
		return nil
	}
	if device.IsKind(err, device.CapabilityUnavailable) {
		c.status.set(unavailableStatus())
	} else {
		c.status.set(bluetoothErrorStatus(err))
	}
	return err
}

// Disconnect tears down the current session, if any.
func (c *Coordinator) Disconnect() error {
	return c.session.Disconnect()
}

// GeneratePlan sends the collected metrics with the profile to the plan
// endpoint. It is never retried.
func (c *Coordinator) GeneratePlan(ctx context.Context, profile *Profile) (*planapi.GenerateResponse, error) {
	ctx, done, err := c.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	if c.plans == nil {
		err := &planapi.PlanError{Err: errors.New("no plan endpoint configured")}
		c.status.set(planFailedStatus(err))
		return nil, err
	}

	req := c.BuildPlanRequest(profile)
	c.status.update(planPendingStatus)

	resp, err := c.plans.GeneratePlan(ctx, req)
	switch {
	case err != nil:
		c.logger.WithField("error", err).Error("Plan generation failed")
		c.status.set(planFailedStatus(err))
		return nil, err
	case resp.HasPlan():
		c.status.set(planSavedStatus())
	default:
		c.status.set(planMessageStatus(resp.Message))
	}
	return resp, nil
}

// BuildPlanRequest merges profile, the configured defaults and the current
// metrics into a plan request.
func (c *Coordinator) BuildPlanRequest(profile *Profile) planapi.GenerateRequest {
	p := c.profile
	if profile != nil {
		p = profile.WithDefaults(c.profile)
	}
	m := c.metrics.snapshot()
	return planapi.GenerateRequest{
		Age:           p.Age,
		Gender:        p.Gender,
		Height:        p.Height,
		Weight:        p.Weight,
		FitnessLevel:  p.FitnessLevel,
		FitnessGoal:   p.FitnessGoal,
		HeartRateRest: m.HeartRate,
		Steps:         m.Steps,
		Device:        m.Device,
	}
}

// SetSelector replaces the selector used by subsequent connects.
func (c *Coordinator) SetSelector(sel device.ServiceSelector) error {
	if _, _, err := sel.Normalized(); err != nil {
		return err
	}
	c.mu.Lock()
	c.selector = sel
	c.mu.Unlock()
	return nil
}

// Selector returns the selector of the next connect.
func (c *Coordinator) Selector() device.ServiceSelector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selector
}

// OverrideDevice sets a manual device label that takes precedence over the
// connected device's name and survives disconnects. "" removes it.
func (c *Coordinator) OverrideDevice(label string) {
	c.metrics.setOverride(label)
}

// ----------------------------
// Read surface
// ----------------------------

// Status returns the current status line.
func (c *Coordinator) Status() Status { return c.status.get() }

// WatchStatus registers fn for every status change.
func (c *Coordinator) WatchStatus(fn func(Status)) (cancel func()) {
	return c.status.watch(fn)
}

// Metrics returns a copy of the collected metrics.
func (c *Coordinator) Metrics() CollectedMetrics { return c.metrics.snapshot() }

// Battery returns the last battery level read from the device.
func (c *Coordinator) Battery() (uint8, bool) { return c.metrics.batteryLevel() }

// Identity returns the connected device.
func (c *Coordinator) Identity() (device.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return device.Identity{}, false
	}
	return *c.identity, true
}

// State returns the session lifecycle state.
func (c *Coordinator) State() device.State { return c.session.State() }

// Subscriptions lists the characteristics currently streaming.
func (c *Coordinator) Subscriptions() []string { return c.session.ActiveSubscriptions() }

// ResolutionErrors lists the non-fatal failures of the last connect.
func (c *Coordinator) ResolutionErrors() []error { return c.session.ResolutionErrors() }

// Close stops accepting triggers, waits for in-flight handlers and
// disconnects the session. Idempotent.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.lifeMu.Lock()
		c.closed.Store(true)
		c.lifeMu.Unlock()

		c.cancel()
		c.handlers.Wait()
		c.inflight.Wait()
		c.closeErr = c.session.Disconnect()
		c.logger.Debug("Telemetry coordinator closed")
	})
	return c.closeErr
}

// ----------------------------
// Session events
// ----------------------------

// sessionListener maps session events onto metrics and status.
type sessionListener struct {
	c *Coordinator
}

func (l *sessionListener) OnState(s device.State) {
	c := l.c
	switch s {
	case device.Discovering:
		c.status.set(requestingStatus())
	case device.Connecting:
		c.status.set(connectingStatus(c.displayName()))
	case device.Subscribed:
		m := c.metrics.snapshot()
		c.status.set(connectedStatus(c.displayName(), m.HeartRate))
	}
}

func (l *sessionListener) OnIdentity(id *device.Identity) {
	c := l.c
	c.mu.Lock()
	if id == nil {
		c.identity = nil
	} else {
		v := *id
		c.identity = &v
	}
	c.mu.Unlock()

	if id == nil {
		// the manual override is kept
		c.metrics.setDevice("")
		return
	}
	c.metrics.setDevice(id.DisplayName())
}

func (l *sessionListener) OnHeartRate(r gatt.HeartRateReading) {
	c := l.c
	c.metrics.setHeartRate(r.BPM)
	id, _ := c.Identity()
	bpm := r.BPM
	c.status.set(connectedStatus(id.DisplayName(), &bpm))

	for _, sink := range c.sinks {
		sink.PublishHeartRate(id, r)
	}
}

func (l *sessionListener) OnSteps(r gatt.StepReading) {
	c := l.c
	c.metrics.setSteps(r.Count)
	id, _ := c.Identity()
	for _, sink := range c.sinks {
		sink.PublishSteps(id, r)
	}
}

func (l *sessionListener) OnBattery(r gatt.BatteryReading) {
	l.c.metrics.setBattery(r.Percent)
}

func (l *sessionListener) OnDisconnected(id device.Identity, cause error) {
	c := l.c
	c.metrics.clearDeviceSourced()
	c.status.set(disconnectedStatus())
	c.logger.WithFields(logrus.Fields{
		"device": id.DisplayName(),
		"cause":  cause,
	}).Info("Cleared metrics of disconnected device")
}

func (c *Coordinator) displayName() string {
	id, _ := c.Identity()
	return id.DisplayName()
}
