package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/fitlink/internal/gatt"
	"github.com/srg/fitlink/internal/groutine"
)

// ----------------------------
// Configuration Constants
// ----------------------------

const (
	// DefaultDiscoveryTimeout bounds the wait for a matching advertisement.
	DefaultDiscoveryTimeout = 30 * time.Second

	// DefaultConnectTimeout bounds GATT connection establishment.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultReadTimeout bounds single characteristic reads.
	DefaultReadTimeout = 5 * time.Second
)

// Listener receives session events. Callbacks are invoked without the state
// lock held and may read session state, but must not call Connect or
// Disconnect.
type Listener interface {
	OnState(State)
	// OnIdentity is called with the discovered device, and with nil when it is cleared.
	OnIdentity(*Identity)
	OnHeartRate(gatt.HeartRateReading)
	OnSteps(gatt.StepReading)
	OnBattery(gatt.BatteryReading)
	// OnDisconnected is called once per torn-down session. cause is nil for
	// an explicit Disconnect.
	OnDisconnected(id Identity, cause error)
}

// NopListener ignores every event. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnState(State)                     {}
func (NopListener) OnIdentity(*Identity)              {}
func (NopListener) OnHeartRate(gatt.HeartRateReading) {}
func (NopListener) OnSteps(gatt.StepReading)          {}
func (NopListener) OnBattery(gatt.BatteryReading)     {}
func (NopListener) OnDisconnected(Identity, error)    {}

// Options configures a Session.
type Options struct {
	Logger           *logrus.Logger
	Listener         Listener
	DiscoveryTimeout time.Duration
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
}

// Session owns at most one device connection at a time.
type Session struct {
	provider CentralProvider
	logger   *logrus.Logger
	listener Listener
	opts     Options

	opMu sync.Mutex // serializes Connect and Disconnect

	mu             sync.RWMutex
	state          State
	identity       *Identity
	client         GATTClient
	subs           *SubscriptionManager
	resolutionErrs []error
	cancelConnect  context.CancelFunc
	monitorCancel  context.CancelFunc
}

// NewSession creates an idle session.
func NewSession(provider CentralProvider, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	return &Session{
		provider: provider,
		logger:   opts.Logger,
		listener: opts.Listener,
		opts:     opts,
		state:    Idle,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns the device of the current session, if any.
func (s *Session) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// ActiveSubscriptions lists the characteristics currently streaming.
func (s *Session) ActiveSubscriptions() []string {
	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()
	if subs == nil {
		return nil
	}
	return subs.Active()
}

// ResolutionErrors returns the non-fatal resolution failures of the last
// connect attempt.
func (s *Session) ResolutionErrors() []error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]error(nil), s.resolutionErrs...)
}

// Connect discovers a device matching sel, connects, and subscribes to
// whatever telemetry characteristics resolve. A live session is torn down
// first. Terminal failures return a *SessionError and leave the session Idle.
func (s *Session) Connect(ctx context.Context, sel ServiceSelector) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.teardown(ErrSuperseded, true); err != nil {
		s.logger.WithField("error", err).Warn("Previous session did not stop cleanly")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelConnect = cancel
	s.resolutionErrs = nil
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.cancelConnect = nil
		s.mu.Unlock()
	}()

	central, err := s.provider()
	if err != nil {
		return s.fail(CapabilityUnavailable, "probe", err, nil)
	}

	filter, err := sel.Filter()
	if err != nil {
		return s.fail(DiscoveryFailed, "select", err, nil)
	}
	_, customChar, _ := sel.Normalized()

	s.setState(Discovering)
	s.logger.WithFields(logrus.Fields{
		"services": filter.Services,
		"timeout":  s.opts.DiscoveryTimeout,
	}).Info("Requesting device...")

	discoverCtx, discoverCancel := context.WithTimeout(ctx, s.opts.DiscoveryTimeout)
	peripheral, err := central.Discover(discoverCtx, filter)
	discoverCancel()
	if err != nil {
		return s.fail(DiscoveryFailed, "discover", err, nil)
	}

	id := Identity{Name: peripheral.Name(), ID: peripheral.ID()}
	s.mu.Lock()
	s.identity = &id
	s.mu.Unlock()
	s.listener.OnIdentity(&id)

	s.setState(Connecting)
	s.logger.WithFields(logrus.Fields{
		"device":  id.DisplayName(),
		"timeout": s.opts.ConnectTimeout,
	}).Info("Connecting to device...")

	connectCtx, connectCancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	client, err := peripheral.Connect(connectCtx)
	connectCancel()
	if err != nil {
		return s.fail(ConnectionFailed, "connect", err, nil)
	}

	s.setState(ServiceResolution)
	subs := NewSubscriptionManager(s.logger)
	s.resolveHeartRate(ctx, client, subs)
	if customChar != "" {
		s.resolveSteps(ctx, client, sel, subs)
	}
	s.readBattery(ctx, client)

	if err := ctx.Err(); err != nil {
		_ = subs.StopAll(true)
		return s.fail(ConnectionFailed, "resolve", err, client)
	}

	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.client = client
	s.subs = subs
	s.monitorCancel = monitorCancel
	s.mu.Unlock()

	groutine.Go(monitorCtx, "device-disconnect-monitor", func(ctx context.Context) {
		s.monitor(ctx, client)
	})

	s.setState(Subscribed)
	s.logger.WithFields(logrus.Fields{
		"device":        id.DisplayName(),
		"subscriptions": subs.Active(),
	}).Info("Device connected")
	return nil
}

// Disconnect stops all notifications, closes the connection and clears the
// identity. An in-flight Connect is cancelled. Safe to call when idle.
func (s *Session) Disconnect() error {
	s.mu.RLock()
	cancel := s.cancelConnect
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.teardown(nil, true)
}

// fail reports a terminal connect failure and returns the session to Idle.
func (s *Session) fail(kind ErrorKind, op string, err error, client GATTClient) error {
	if client != nil {
		if cerr := client.Close(); cerr != nil {
			s.logger.WithField("error", cerr).Debug("Failed to close client after connect failure")
		}
	}

	s.mu.Lock()
	hadIdentity := s.identity != nil
	s.identity = nil
	s.mu.Unlock()
	if hadIdentity {
		s.listener.OnIdentity(nil)
	}

	serr := &SessionError{Kind: kind, Op: op, Err: err}
	s.logger.WithFields(logrus.Fields{
		"kind":  kind,
		"op":    op,
		"error": err,
	}).Error("Connect attempt failed")

	s.setState(Error)
	s.setState(Idle)
	return serr
}

// teardown dismantles the live session, if any. Caller holds opMu.
func (s *Session) teardown(cause error, remote bool) error {
	s.mu.Lock()
	client, subs, id, monitorCancel := s.client, s.subs, s.identity, s.monitorCancel
	s.client, s.subs, s.identity, s.monitorCancel = nil, nil, nil, nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	if monitorCancel != nil {
		monitorCancel()
	}

	var errs []error
	if subs != nil {
		if err := subs.StopAll(remote); err != nil {
			errs = append(errs, err)
		}
	}
	if err := client.Close(); err != nil && remote {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}

	var ident Identity
	if id != nil {
		ident = *id
	}
	s.logger.WithFields(logrus.Fields{
		"device": ident.DisplayName(),
		"cause":  cause,
	}).Info("Device disconnected")

	s.setState(Disconnected)
	s.listener.OnIdentity(nil)
	s.listener.OnDisconnected(ident, cause)
	s.setState(Idle)
	return errors.Join(errs...)
}

// monitor waits for the platform to report the link gone.
func (s *Session) monitor(ctx context.Context, client GATTClient) {
	select {
	case <-client.Disconnected():
	case <-ctx.Done():
		return
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	current := s.client
	s.mu.RUnlock()
	if current != client {
		return
	}
	s.logger.Warn("Platform reported disconnection")
	_ = s.teardown(ErrDeviceLost, false)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.listener.OnState(state)
}

func (s *Session) noteResolution(name string, err error) {
	serr := &SessionError{Kind: ServiceResolutionFailed, Op: name, Err: err}
	s.mu.Lock()
	s.resolutionErrs = append(s.resolutionErrs, serr)
	s.mu.Unlock()
	s.logger.WithFields(logrus.Fields{
		"characteristic": name,
		"error":          err,
	}).Warn("Optional characteristic unavailable")
}

// resolveHeartRate subscribes to the standard heart rate measurement. Devices
// without it are fine.
func (s *Session) resolveHeartRate(ctx context.Context, client GATTClient, subs *SubscriptionManager) {
	char, err := client.Characteristic(ctx, HeartRateServiceUUID, HeartRateMeasurementUUID)
	if err != nil {
		s.noteResolution("heart_rate_measurement", err)
		return
	}
	if err := subs.Start(char, "heart_rate_measurement", s.handleHeartRate); err != nil {
		s.noteResolution("heart_rate_measurement", err)
	}
}

// resolveSteps subscribes to the custom step characteristic, falling back to
// a single read when notifications cannot be started.
func (s *Session) resolveSteps(ctx context.Context, client GATTClient, sel ServiceSelector, subs *SubscriptionManager) {
	service, charUUID, _ := sel.Normalized()
	if service == "" {
		s.noteResolution("steps", &NotFoundError{Resource: "service", UUIDs: []string{sel.CustomServiceID}})
		return
	}

	char, err := client.Characteristic(ctx, service, charUUID)
	if err != nil {
		s.noteResolution("steps", err)
		return
	}

	notifyErr := subs.Start(char, "steps", s.handleSteps)
	if notifyErr == nil {
		return
	}
	s.logger.WithField("error", notifyErr).Debug("Step notifications unavailable, reading once")

	readCtx, cancel := context.WithTimeout(ctx, s.opts.ReadTimeout)
	defer cancel()
	data, err := char.Read(readCtx)
	if err != nil {
		s.noteResolution("steps", fmt.Errorf("read fallback: %w", err))
		return
	}
	reading, err := gatt.DecodeStepCount(data)
	if err != nil {
		s.noteResolution("steps", err)
		return
	}
	reading.Source = gatt.SourceRead
	s.listener.OnSteps(reading)
}

// readBattery reads the battery level once when the device exposes it.
func (s *Session) readBattery(ctx context.Context, client GATTClient) {
	char, err := client.Characteristic(ctx, BatteryServiceUUID, BatteryLevelUUID)
	if err != nil {
		s.logger.WithField("error", err).Debug("Battery level not exposed")
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, s.opts.ReadTimeout)
	defer cancel()
	data, err := char.Read(readCtx)
	if err != nil {
		s.logger.WithField("error", err).Debug("Battery level read failed")
		return
	}
	reading, err := gatt.DecodeBatteryLevel(data)
	if err != nil {
		s.logger.WithField("error", err).Warn("Malformed battery level")
		return
	}
	s.listener.OnBattery(reading)
}

func (s *Session) handleHeartRate(data []byte) {
	reading, err := gatt.DecodeHeartRate(data)
	if err != nil {
		s.logger.WithField("error", err).Warn("Dropping malformed heart rate notification")
		return
	}
	s.listener.OnHeartRate(reading)
}

func (s *Session) handleSteps(data []byte) {
	reading, err := gatt.DecodeStepCount(data)
	if err != nil {
		s.logger.WithField("error", err).Warn("Dropping malformed step notification")
		return
	}
	s.listener.OnSteps(reading)
}
