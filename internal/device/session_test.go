package device_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/fitlink/internal/device"
	"github.com/srg/fitlink/internal/device/simulated"
	"github.com/srg/fitlink/internal/gatt"
	"github.com/srg/fitlink/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const (
	trackerID   = "AA:BB:CC:DD:EE:FF"
	trackerName = "Polar H10"
	stepService = "fff0"
	stepChar    = "fff1"
)

// events is a copy of everything a recorder saw.
type events struct {
	states      []device.State
	identities  []*device.Identity
	heartRates  []gatt.HeartRateReading
	steps       []gatt.StepReading
	batteries   []gatt.BatteryReading
	disconnects []error
}

// recorder captures every listener callback.
type recorder struct {
	mu sync.Mutex
	ev events
}

func (r *recorder) OnState(s device.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.states = append(r.ev.states, s)
}

func (r *recorder) OnIdentity(id *device.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.identities = append(r.ev.identities, id)
}

func (r *recorder) OnHeartRate(hr gatt.HeartRateReading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.heartRates = append(r.ev.heartRates, hr)
}

func (r *recorder) OnSteps(st gatt.StepReading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.steps = append(r.ev.steps, st)
}

func (r *recorder) OnBattery(b gatt.BatteryReading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.batteries = append(r.ev.batteries, b)
}

func (r *recorder) OnDisconnected(_ device.Identity, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ev.disconnects = append(r.ev.disconnects, cause)
}

func (r *recorder) snapshot() events {
	r.mu.Lock()
	defer r.mu.Unlock()
	return events{
		states:      append([]device.State(nil), r.ev.states...),
		identities:  append([]*device.Identity(nil), r.ev.identities...),
		heartRates:  append([]gatt.HeartRateReading(nil), r.ev.heartRates...),
		steps:       append([]gatt.StepReading(nil), r.ev.steps...),
		batteries:   append([]gatt.BatteryReading(nil), r.ev.batteries...),
		disconnects: append([]error(nil), r.ev.disconnects...),
	}
}

type SessionTestSuite struct {
	testutils.LoggerSuite

	rec     *recorder
	central *simulated.Central
}

func (suite *SessionTestSuite) SetupTest() {
	suite.LoggerSuite.SetupTest()
	suite.rec = &recorder{}
	suite.central = simulated.NewCentral()
}

func (suite *SessionTestSuite) newSession(provider device.CentralProvider) *device.Session {
	return device.NewSession(provider, device.Options{
		Logger:           suite.Logger,
		Listener:         suite.rec,
		DiscoveryTimeout: time.Second,
		ConnectTimeout:   time.Second,
		ReadTimeout:      time.Second,
	})
}

func (suite *SessionTestSuite) heartRateTracker() *simulated.Peripheral {
	return simulated.NewPeripheral(trackerID, trackerName).
		WithService("180D").
		WithCharacteristic("2A37", "notify", nil).
		WithService("180F").
		WithCharacteristic("2A19", "read", []byte{85})
}

func (suite *SessionTestSuite) TestCapabilityUnavailable() {
	// GOAL: Verify a host without Bluetooth fails fast without discovery
	//
	// TEST SCENARIO: Provider returns error → Connect fails with CapabilityUnavailable → state back to Idle

	session := suite.newSession(simulated.Unavailable(nil))

	err := session.Connect(context.Background(), device.ServiceSelector{})

	suite.Require().Error(err, "MUST fail when Bluetooth is unavailable")
	suite.Assert().True(errors.Is(err, device.ErrCapabilityUnavailable), "error MUST match capability sentinel")
	suite.Assert().ErrorIs(err, device.ErrBluetoothOff, "error MUST wrap provider error")

	var serr *device.SessionError
	suite.Require().ErrorAs(err, &serr, "error MUST be a SessionError")
	suite.Assert().Equal(device.CapabilityUnavailable, serr.Kind)

	snap := suite.rec.snapshot()
	suite.Assert().Equal([]device.State{device.Error, device.Idle}, snap.states, "MUST never enter Discovering")
	suite.Assert().Empty(snap.identities, "identity MUST never be reported")
	suite.Assert().Equal(device.Idle, session.State())
}

func (suite *SessionTestSuite) TestConnectStreamsHeartRate() {
	// GOAL: Verify the happy path reaches Subscribed and routes notifications
	//
	// TEST SCENARIO: HR tracker advertised → Connect → states progress → notification decoded → reading delivered

	tracker := suite.heartRateTracker()
	suite.central.Add(tracker)
	session := suite.newSession(suite.central.Provider())

	err := session.Connect(context.Background(), device.ServiceSelector{})
	suite.Require().NoError(err, "MUST connect")

	snap := suite.rec.snapshot()
	suite.Assert().Equal([]device.State{
		device.Discovering, device.Connecting, device.ServiceResolution, device.Subscribed,
	}, snap.states, "states MUST progress in order")
	suite.Require().Len(snap.identities, 1)
	suite.Assert().Equal(trackerName, snap.identities[0].Name)
	suite.Assert().Equal(trackerID, snap.identities[0].ID)
	suite.Require().Len(snap.batteries, 1, "battery level MUST be read once")
	suite.Assert().Equal(uint8(85), snap.batteries[0].Percent)

	suite.Assert().Equal([]string{"heart_rate_measurement"}, session.ActiveSubscriptions())
	suite.Assert().Empty(session.ResolutionErrors())
	id, ok := session.Identity()
	suite.Assert().True(ok)
	suite.Assert().Equal(trackerName, id.DisplayName())

	suite.Require().True(tracker.Emit("2a37", []byte{0x00, 88}), "notification MUST be delivered")

	snap = suite.rec.snapshot()
	suite.Require().Len(snap.heartRates, 1)
	suite.Assert().Equal(uint16(88), snap.heartRates[0].BPM)
	suite.Assert().Equal(gatt.SourceNotification, snap.heartRates[0].Source)
}

func (suite *SessionTestSuite) TestMalformedNotificationIsSkipped() {
	// GOAL: Verify decode failures are logged and do not reach the listener
	//
	// TEST SCENARIO: Flags-only HR payload → dropped → next valid payload delivered

	tracker := suite.heartRateTracker()
	suite.central.Add(tracker)
	session := suite.newSession(suite.central.Provider())
	suite.Require().NoError(session.Connect(context.Background(), device.ServiceSelector{}))

	tracker.Emit("2a37", []byte{0x00})
	tracker.Emit("2a37", []byte{0x01, 0x2C, 0x01})

	snap := suite.rec.snapshot()
	suite.Require().Len(snap.heartRates, 1, "malformed payload MUST be skipped")
	suite.Assert().Equal(uint16(300), snap.heartRates[0].BPM)
	suite.Assert().Contains(suite.Logs.String(), "Dropping malformed heart rate notification")
}

func (suite *SessionTestSuite) TestHeartRateMissingStepsStreaming() {
	// GOAL: Verify a device without the heart rate service still streams steps
	//
	// TEST SCENARIO: Custom service only → HR resolution fails non-fatally → Subscribed → steps delivered

	tracker := simulated.NewPeripheral(trackerID, "StepBand").
		WithService(stepService).
		WithCharacteristic(stepChar, "notify", nil)
	suite.central.Add(tracker)
	session := suite.newSession(suite.central.Provider())

	err := session.Connect(context.Background(), device.ServiceSelector{
		CustomServiceID:        stepService,
		CustomCharacteristicID: "0x" + stepChar,
	})
	suite.Require().NoError(err, "missing HR service MUST NOT fail the connect")
	suite.Assert().Equal(device.Subscribed, session.State())
	suite.Assert().Equal([]string{"steps"}, session.ActiveSubscriptions())

	resolution := session.ResolutionErrors()
	suite.Require().Len(resolution, 1, "HR resolution failure MUST be recorded")
	suite.Assert().True(device.IsKind(resolution[0], device.ServiceResolutionFailed))
	var notFound *device.NotFoundError
	suite.Require().ErrorAs(resolution[0], &notFound)
	suite.Assert().Equal("service", notFound.Resource)

	suite.Require().True(tracker.Emit(stepChar, gatt.EncodeStepCount(1234)))
	snap := suite.rec.snapshot()
	suite.Require().Len(snap.steps, 1)
	suite.Assert().Equal(uint32(1234), snap.steps[0].Count)
	suite.Assert().Empty(snap.heartRates)
}

func (suite *SessionTestSuite) TestStepReadFallback() {
	// GOAL: Verify steps fall back to a single read when notifications fail
	//
	// TEST SCENARIO: Step characteristic with unusable notifications → one read → reading tagged SourceRead

	suite.Run("characteristic without notify", func() {
		rec := &recorder{}
		tracker := suite.heartRateTracker().
			WithService(stepService).
			WithCharacteristic(stepChar, "read", gatt.EncodeStepCount(4321))
		session := device.NewSession(simulated.NewCentral(tracker).Provider(), device.Options{Logger: suite.Logger, Listener: rec})

		err := session.Connect(context.Background(), device.ServiceSelector{CustomServiceID: stepService, CustomCharacteristicID: stepChar})
		suite.Require().NoError(err)

		snap := rec.snapshot()
		suite.Require().Len(snap.steps, 1, "MUST read steps once")
		suite.Assert().Equal(uint32(4321), snap.steps[0].Count)
		suite.Assert().Equal(gatt.SourceRead, snap.steps[0].Source)
		suite.Assert().Equal([]string{"heart_rate_measurement"}, session.ActiveSubscriptions())
	})

	suite.Run("notification start rejected", func() {
		rec := &recorder{}
		tracker := suite.heartRateTracker().
			WithService(stepService).
			WithCharacteristic(stepChar, "read,notify", gatt.EncodeStepCount(77)).
			WithNotifyError(errors.New("cccd write rejected"))
		session := device.NewSession(simulated.NewCentral(tracker).Provider(), device.Options{Logger: suite.Logger, Listener: rec})

		suite.Require().NoError(session.Connect(context.Background(), device.ServiceSelector{CustomServiceID: stepService, CustomCharacteristicID: stepChar}))

		snap := rec.snapshot()
		suite.Require().Len(snap.steps, 1)
		suite.Assert().Equal(uint32(77), snap.steps[0].Count)
		suite.Assert().Equal(gatt.SourceRead, snap.steps[0].Source)
	})

	suite.Run("read also fails", func() {
		rec := &recorder{}
		tracker := suite.heartRateTracker().
			WithService(stepService).
			WithCharacteristic(stepChar, "read", nil).
			WithReadError(errors.New("insufficient authentication"))
		session := device.NewSession(simulated.NewCentral(tracker).Provider(), device.Options{Logger: suite.Logger, Listener: rec})

		suite.Require().NoError(session.Connect(context.Background(), device.ServiceSelector{CustomServiceID: stepService, CustomCharacteristicID: stepChar}))

		suite.Assert().Empty(rec.snapshot().steps)
		suite.Require().Len(session.ResolutionErrors(), 1)
		suite.Assert().Contains(session.ResolutionErrors()[0].Error(), "read fallback")
	})
}

func (suite *SessionTestSuite) TestDiscoveryFailures() {
	// GOAL: Verify discovery problems map to DiscoveryFailed
	//
	// TEST SCENARIO: No match / invalid selector → DiscoveryFailed → Idle

	suite.Run("no matching device", func() {
		session := suite.newSession(suite.central.Provider())

		err := session.Connect(context.Background(), device.ServiceSelector{})

		suite.Assert().True(device.IsKind(err, device.DiscoveryFailed), "MUST be DiscoveryFailed, got %v", err)
		suite.Assert().ErrorIs(err, simulated.ErrNoMatch)
		suite.Assert().Equal(device.Idle, session.State())
	})

	suite.Run("invalid selector identifier", func() {
		central := simulated.NewCentral(suite.heartRateTracker())
		session := suite.newSession(central.Provider())

		err := session.Connect(context.Background(), device.ServiceSelector{CustomServiceID: "not-a-uuid"})

		suite.Assert().ErrorIs(err, device.ErrDiscoveryFailed)
		var invalid *device.InvalidIdentifierError
		suite.Require().ErrorAs(err, &invalid)
		suite.Assert().Equal("service", invalid.Field)
		suite.Assert().Zero(central.DiscoverCalls(), "MUST NOT scan with an invalid selector")
	})
}

func (suite *SessionTestSuite) TestConnectionFailure() {
	// GOAL: Verify GATT connect failures clear the identity and return to Idle
	//
	// TEST SCENARIO: Peripheral rejects connection → ConnectionFailed → identity reported then cleared

	tracker := suite.heartRateTracker()
	tracker.ConnectErr = errors.New("le-connection-abort-by-local")
	suite.central.Add(tracker)
	session := suite.newSession(suite.central.Provider())

	err := session.Connect(context.Background(), device.ServiceSelector{})

	suite.Assert().ErrorIs(err, device.ErrConnectionFailed)
	suite.Assert().Contains(err.Error(), "le-connection-abort-by-local")
	_, ok := session.Identity()
	suite.Assert().False(ok, "identity MUST be cleared")

	snap := suite.rec.snapshot()
	suite.Require().Len(snap.identities, 2)
	suite.Assert().NotNil(snap.identities[0])
	suite.Assert().Nil(snap.identities[1], "identity MUST be cleared after failure")
	suite.Assert().Equal(device.Idle, snap.states[len(snap.states)-1])
	suite.Assert().Contains(snap.states, device.Error)
}

func (suite *SessionTestSuite) TestSupersession() {
	// GOAL: Verify a second connect tears down the first session
	//
	// TEST SCENARIO: Connect twice → old session reported superseded → one notification yields one reading

	tracker := suite.heartRateTracker()
	suite.central.Add(tracker)
	session := suite.newSession(suite.central.Provider())

	suite.Require().NoError(session.Connect(context.Background(), device.ServiceSelector{}))
	suite.Require().NoError(session.Connect(context.Background(), device.ServiceSelector{}))

	suite.Assert().Equal(2, tracker.Connects())
	suite.Assert().Equal([]string{"heart_rate_measurement"}, session.ActiveSubscriptions(), "MUST have exactly one live subscription")

	tracker.Emit("2a37", []byte{0x00, 90})

	snap := suite.rec.snapshot()
	suite.Assert().Len(snap.heartRates, 1, "superseded handlers MUST be inert")
	suite.Require().Len(snap.disconnects, 1)
	suite.Assert().ErrorIs(snap.disconnects[0], device.ErrSuperseded)
}

func (suite *SessionTestSuite) TestPlatformDisconnect() {
	// GOAL: Verify a dropped link clears the session without remote calls
	//
	// TEST SCENARIO: Connected → platform drops link → monitor tears down → Idle with ErrDeviceLost

	tracker := suite.heartRateTracker()
	suite.central.Add(tracker)
	session := suite.newSession(suite.central.Provider())
	suite.Require().NoError(session.Connect(context.Background(), device.ServiceSelector{}))

	tracker.Drop()

	suite.Require().Eventually(func() bool {
		return len(suite.rec.snapshot().disconnects) == 1
	}, time.Second, 5*time.Millisecond, "disconnect MUST be reported")

	suite.Assert().ErrorIs(suite.rec.snapshot().disconnects[0], device.ErrDeviceLost)
	suite.Assert().Equal(device.Idle, session.State())
	_, ok := session.Identity()
	suite.Assert().False(ok, "identity MUST be cleared")
	suite.Assert().Empty(session.ActiveSubscriptions())

	snap := suite.rec.snapshot()
	suite.Assert().Nil(snap.identities[len(snap.identities)-1])
	suite.Assert().Equal([]device.State{device.Disconnected, device.Idle}, snap.states[len(snap.states)-2:])
}

func (suite *SessionTestSuite) TestDisconnect() {
	// GOAL: Verify explicit disconnect stops notifications and is idempotent
	//
	// TEST SCENARIO: Disconnect while idle → no-op; connected → notifications stopped → client closed

	tracker := suite.heartRateTracker()
	suite.central.Add(tracker)
	session := suite.newSession(suite.central.Provider())

	suite.Require().NoError(session.Disconnect(), "disconnect while idle MUST be a no-op")
	suite.Assert().Empty(suite.rec.snapshot().states)

	suite.Require().NoError(session.Connect(context.Background(), device.ServiceSelector{}))
	suite.Require().True(tracker.Subscribed("2a37"))

	suite.Require().NoError(session.Disconnect())
	suite.Assert().False(tracker.Subscribed("2a37"), "notifications MUST be stopped")
	suite.Assert().False(tracker.Connected(), "client MUST be closed")
	suite.Assert().Equal(device.Idle, session.State())

	snap := suite.rec.snapshot()
	suite.Require().Len(snap.disconnects, 1)
	suite.Assert().NoError(snap.disconnects[0], "explicit disconnect MUST have nil cause")

	suite.Require().NoError(session.Disconnect())
	suite.Assert().Len(suite.rec.snapshot().disconnects, 1, "second disconnect MUST be a no-op")
}

func (suite *SessionTestSuite) TestDisconnectCancelsInFlightConnect() {
	// GOAL: Verify disconnect aborts a connect that is still discovering
	//
	// TEST SCENARIO: Discovery blocks → Disconnect → Connect returns DiscoveryFailed wrapping context.Canceled

	suite.central.BlockUntilCancelled = true
	session := device.NewSession(suite.central.Provider(), device.Options{
		Logger:           suite.Logger,
		Listener:         suite.rec,
		DiscoveryTimeout: time.Minute,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Connect(context.Background(), device.ServiceSelector{})
	}()

	suite.Require().Eventually(func() bool {
		return session.State() == device.Discovering
	}, time.Second, 5*time.Millisecond)

	suite.Require().NoError(session.Disconnect())

	select {
	case err := <-errCh:
		suite.Assert().ErrorIs(err, device.ErrDiscoveryFailed)
		suite.Assert().ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		suite.Fail("Connect MUST return after Disconnect")
	}
	suite.Assert().Equal(device.Idle, session.State())
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
