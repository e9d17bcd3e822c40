package device

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCharacteristic struct {
	mock.Mock
	handler func([]byte)
}

func (m *mockCharacteristic) UUID() string    { return m.Called().String(0) }
func (m *mockCharacteristic) CanNotify() bool { return m.Called().Bool(0) }

func (m *mockCharacteristic) StartNotifications(handler func([]byte)) error {
	m.handler = handler
	return m.Called(handler).Error(0)
}

func (m *mockCharacteristic) StopNotifications() error {
	return m.Called().Error(0)
}

func (m *mockCharacteristic) Read(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func newMockChar(canNotify bool) *mockCharacteristic {
	m := &mockCharacteristic{}
	m.On("UUID").Return("2a37").Maybe()
	m.On("CanNotify").Return(canNotify).Maybe()
	return m
}

func TestSubscriptionManager_StartAndStop(t *testing.T) {
	char := newMockChar(true)
	char.On("StartNotifications", mock.Anything).Return(nil).Once()
	char.On("StopNotifications").Return(nil).Once()

	var got [][]byte
	m := NewSubscriptionManager(logrus.New())
	require.NoError(t, m.Start(char, "heart_rate_measurement", func(b []byte) { got = append(got, b) }))
	assert.Equal(t, []string{"heart_rate_measurement"}, m.Active())

	char.handler([]byte{0x00, 60})
	require.NoError(t, m.StopAll(true))
	char.handler([]byte{0x00, 61})

	assert.Equal(t, [][]byte{{0x00, 60}}, got, "stopped handler MUST be inert")
	assert.Empty(t, m.Active())
	char.AssertExpectations(t)
}

func TestSubscriptionManager_LocalStopSkipsPeripheral(t *testing.T) {
	char := newMockChar(true)
	char.On("StartNotifications", mock.Anything).Return(nil).Once()

	m := NewSubscriptionManager(nil)
	require.NoError(t, m.Start(char, "steps", func([]byte) {}))
	require.NoError(t, m.StopAll(false))

	char.AssertNotCalled(t, "StopNotifications")
}

func TestSubscriptionManager_Failures(t *testing.T) {
	t.Run("no notify property", func(t *testing.T) {
		char := newMockChar(false)
		err := NewSubscriptionManager(nil).Start(char, "steps", func([]byte) {})
		assert.ErrorIs(t, err, ErrUnsupported)
		char.AssertNotCalled(t, "StartNotifications", mock.Anything)
	})

	t.Run("nil handler", func(t *testing.T) {
		err := NewSubscriptionManager(nil).Start(newMockChar(true), "steps", nil)
		assert.Error(t, err)
	})

	t.Run("platform rejects", func(t *testing.T) {
		char := newMockChar(true)
		char.On("StartNotifications", mock.Anything).Return(errors.New("cccd write failed"))
		m := NewSubscriptionManager(nil)

		err := m.Start(char, "steps", func([]byte) {})
		assert.ErrorContains(t, err, "cccd write failed")
		assert.Empty(t, m.Active())
	})

	t.Run("stop errors are joined", func(t *testing.T) {
		char := newMockChar(true)
		char.On("StartNotifications", mock.Anything).Return(nil)
		char.On("StopNotifications").Return(errors.New("link lost"))
		m := NewSubscriptionManager(nil)
		require.NoError(t, m.Start(char, "steps", func([]byte) {}))

		err := m.StopAll(true)
		assert.ErrorContains(t, err, "steps: link lost")
	})
}

func TestSubscriptionManager_HandlerPanicRecovered(t *testing.T) {
	char := newMockChar(true)
	char.On("StartNotifications", mock.Anything).Return(nil)

	m := NewSubscriptionManager(nil)
	require.NoError(t, m.Start(char, "steps", func([]byte) { panic("boom") }))

	assert.NotPanics(t, func() { char.handler([]byte{1, 2, 3, 4}) })
}
