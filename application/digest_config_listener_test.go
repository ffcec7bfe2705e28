package application

import (
	"context"
	"errors"
	"testing"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/events"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDigestSyncer struct {
	mock.Mock
}

func (m *mockDigestSyncer) SyncDigest(ctx context.Context, digestID string) error {
	args := m.Called(ctx, digestID)
	return args.Error(0)
}

func TestDigestConfigListener_HandleDigestConfigChanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("syncs the digest", func(t *testing.T) {
		syncer := new(mockDigestSyncer)
		syncer.On("SyncDigest", ctx, "digest-1").Return(nil).Once()

		err := NewDigestConfigListener(syncer).HandleDigestConfigChanged(ctx,
			&events.DigestConfigChangedEvent{DigestID: "digest-1", Action: "updated"})

		require.NoError(t, err)
		syncer.AssertExpectations(t)
	})

	t.Run("sync errors are returned for redelivery", func(t *testing.T) {
		syncer := new(mockDigestSyncer)
		syncer.On("SyncDigest", ctx, "digest-1").Return(errors.New("db down"))

		err := NewDigestConfigListener(syncer).HandleDigestConfigChanged(ctx,
			events.DigestConfigChangedEvent{DigestID: "digest-1", Action: "created"})

		require.Error(t, err)
	})

	t.Run("ignores events without digest id", func(t *testing.T) {
		syncer := new(mockDigestSyncer)

		err := NewDigestConfigListener(syncer).HandleDigestConfigChanged(ctx, events.DigestConfigChangedEvent{})

		require.NoError(t, err)
		syncer.AssertNotCalled(t, "SyncDigest", mock.Anything, mock.Anything)
	})

	t.Run("rejects other events", func(t *testing.T) {
		syncer := new(mockDigestSyncer)

		err := NewDigestConfigListener(syncer).HandleDigestConfigChanged(ctx, events.DigestRunSkippedEvent{})

		require.Error(t, err)
	})
}

func TestRegisterApplicationSubscriptions_WiresSchedulerSync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	subscriber := new(testhelpers.MockEventSubscriber)
	digests := new(testhelpers.MockDigestRepository)
	scheduler := NewScheduler(digests, new(mockDigestRunner))

	var handler func(context.Context, events.Event) error
	subscriber.On("Subscribe", events.EventTypeDigestConfigChanged, mock.Anything).
		Run(func(args mock.Arguments) {
			handler = args.Get(1).(func(context.Context, events.Event) error)
		}).
		Return(nil).Once()

	require.NoError(t, RegisterApplicationSubscriptions(subscriber, scheduler))
	require.NotNil(t, handler)

	digests.On("GetByID", ctx, "digest-1").Return(&entities.Digest{
		ID: "digest-1", IsActive: true, Schedule: entities.Schedule{Type: entities.ScheduleHourly},
	}, nil)

	require.NoError(t, handler(ctx, &events.DigestConfigChangedEvent{DigestID: "digest-1", Action: "created"}))

	status := scheduler.GetStatus()
	require.Len(t, status.Jobs, 1)
	assert.Equal(t, "0 * * * *", status.Jobs[0].CronExpression)
}
