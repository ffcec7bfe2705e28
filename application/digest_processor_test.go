package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/events"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var processorNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type processorMocks struct {
	digests   *testhelpers.MockDigestRepository
	runs      *testhelpers.MockRunRepository
	templates *testhelpers.MockTemplateRepository
	source    *testhelpers.MockEventSource
	sender    *testhelpers.MockMessageSender
	publisher *testhelpers.MockEventPublisher
	archive   *testhelpers.MockSnapshotArchive
}

func setupProcessor(withArchive bool) (*DigestProcessor, *processorMocks) {
	m := &processorMocks{
		digests:   new(testhelpers.MockDigestRepository),
		runs:      new(testhelpers.MockRunRepository),
		templates: new(testhelpers.MockTemplateRepository),
		source:    new(testhelpers.MockEventSource),
		sender:    new(testhelpers.MockMessageSender),
		publisher: new(testhelpers.MockEventPublisher),
		archive:   new(testhelpers.MockSnapshotArchive),
	}
	var archive interfaces.SnapshotArchive
	if withArchive {
		archive = m.archive
	}
	p := NewDigestProcessor(m.digests, m.runs, m.templates, m.source, m.sender, m.publisher, archive,
		ProcessorConfig{Lookback: 24 * time.Hour, Environment: "test"})
	p.now = func() time.Time { return processorNow }
	return p, m
}

func createTestDigest(opts ...func(*entities.Digest)) *entities.Digest {
	digest := &entities.Digest{
		ID:               "digest-1",
		OwnerAccountID:   "acc-1",
		Name:             "Shares",
		Filters:          entities.EventFilters{EventTypes: []string{"file.share"}},
		Schedule:         entities.Schedule{Type: entities.ScheduleDaily, DailyTime: "09:00"},
		Recipients:       []string{"a@example.test", "b@example.test"},
		TestRecipients:   []string{"qa@example.test"},
		TemplateID:       "tmpl-1",
		IsActive:         true,
		WatermarkVersion: 3,
	}
	for _, opt := range opts {
		opt(digest)
	}
	return digest
}

func digestEvent(uid, eventType string, age time.Duration) entities.DigestEvent {
	return entities.DigestEvent{
		UID:       uid,
		Timestamp: processorNow.Add(-age),
		EventType: eventType,
		AccountID: "acc-1",
		Source:    entities.EventSource{Application: "grid", Environment: "production"},
		Data:      map[string]any{},
	}
}

func withWatermark(uid string, at time.Time) func(*entities.Digest) {
	return func(d *entities.Digest) {
		d.LastEventUID = &uid
		d.LastCheckAt = &at
	}
}

func TestDigestProcessor_Process_ScheduledSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, m := setupProcessor(false)

	lastCheck := processorNow.Add(-24 * time.Hour)
	digest := createTestDigest(withWatermark("evt-0", lastCheck))
	tmpl := &entities.Template{ID: "tmpl-1"}

	fetched := []entities.DigestEvent{
		digestEvent("evt-1", "file.share", 3*time.Hour),
		digestEvent("evt-2", "comment.create", 2*time.Hour),
		digestEvent("evt-3", "file.share", time.Hour),
	}

	m.digests.On("GetByID", ctx, "digest-1").Return(digest, nil)
	m.runs.On("Create", ctx, mock.MatchedBy(func(r *entities.Run) bool {
		return r.ID != "" && r.Status == entities.RunStatusProcessing && r.RunType == entities.RunTypeScheduled && r.RunAt.Equal(processorNow)
	})).Return(nil).Once()
	m.templates.On("GetByID", ctx, "tmpl-1").Return(tmpl, nil)
	m.source.On("FetchSince", ctx, digest.LastEventUID, lastCheck, entities.FetchHints{EventTypes: []string{"file.share"}}).
		Return(fetched, nil).Once()
	m.sender.On("SendBatch", ctx, mock.Anything, tmpl,
		mock.MatchedBy(func(evts []entities.DigestEvent) bool {
			return len(evts) == 2 && evts[0].UID == "evt-3" && evts[1].UID == "evt-1"
		}),
		[]string{"a@example.test", "b@example.test"},
		mock.MatchedBy(func(meta entities.DigestMeta) bool {
			return meta.PeriodStart.Equal(lastCheck) && meta.PeriodEnd.Equal(processorNow) && meta.AccountID == "acc-1"
		}),
	).Return(entities.SendResult{Sent: 2}, nil).Once()
	m.runs.On("Complete", ctx, mock.Anything).Return(nil).Once()
	m.digests.On("UpdateWatermark", ctx, "digest-1", mock.MatchedBy(func(u entities.WatermarkUpdate) bool {
		return u.LastEventUID != nil && *u.LastEventUID == "evt-3" && u.LastCheckAt.Equal(processorNow) && u.ExpectedVersion == 3
	})).Return(nil).Once()
	m.source.On("Emit", ctx, mock.MatchedBy(func(e interfaces.BusEvent) bool {
		return e.EventType == DigestSentEventType && e.AccountID == "acc-1" && e.Source.Application == ServiceName
	})).Return(nil).Once()
	m.publisher.On("Publish", mock.AnythingOfType("events.DigestRunCompletedEvent")).Return(nil).Once()

	result, err := p.Process(ctx, "digest-1", ProcessOptions{RunType: entities.RunTypeScheduled})

	require.NoError(t, err)
	require.NotNil(t, result.Run)
	assert.False(t, result.Skipped)
	assert.Equal(t, 3, result.EventsFetched)

	run := result.Run
	assert.Equal(t, entities.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.EventsCount)
	assert.Equal(t, 2, run.EmailsSent)
	assert.Equal(t, 0, run.EmailsFailed)
	require.NotNil(t, run.EventUIDStart)
	require.NotNil(t, run.EventUIDEnd)
	assert.Equal(t, "evt-1", *run.EventUIDStart)
	assert.Equal(t, "evt-3", *run.EventUIDEnd)
	require.NotNil(t, run.DurationMs)
	assert.Equal(t, int64(0), *run.DurationMs)
	assert.Contains(t, string(run.EventsSnapshot), "evt-3")

	m.digests.AssertExpectations(t)
	m.runs.AssertExpectations(t)
	m.source.AssertExpectations(t)
	m.sender.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
}

func TestDigestProcessor_Process_PartialWhenRecipientsFail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, m := setupProcessor(false)

	digest := createTestDigest()
	m.digests.On("GetByID", ctx, "digest-1").Return(digest, nil)
	m.runs.On("Create", ctx, mock.Anything).Return(nil)
	m.templates.On("GetByID", ctx, "tmpl-1").Return(&entities.Template{ID: "tmpl-1"}, nil)
	m.source.On("FetchSince", ctx, (*string)(nil), processorNow.Add(-24*time.Hour), mock.Anything).
		Return([]entities.DigestEvent{digestEvent("evt-1", "file.share", time.Hour)}, nil)
	m.sender.On("SendBatch", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(entities.SendResult{Sent: 1, Failed: 1}, nil)
	m.runs.On("Complete", ctx, mock.Anything).Return(nil)
	m.digests.On("UpdateWatermark", ctx, "digest-1", mock.Anything).Return(nil)
	m.source.On("Emit", ctx, mock.Anything).Return(nil)
	m.publisher.On("Publish", mock.Anything).Return(nil)

	result, err := p.Process(ctx, "digest-1", ProcessOptions{RunType: entities.RunTypeScheduled})

	require.NoError(t, err)
	assert.Equal(t, entities.RunStatusPartial, result.Run.Status)
	assert.Equal(t, 1, result.Run.EmailsSent)
	assert.Equal(t, 1, result.Run.EmailsFailed)
}

func TestDigestProcessor_Process_SkipsInactiveOrPaused(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		digest *entities.Digest
		reason string
	}{
		{name: "inactive", digest: createTestDigest(func(d *entities.Digest) { d.IsActive = false }), reason: "inactive"},
		{name: "paused", digest: createTestDigest(func(d *entities.Digest) { d.IsPaused = true }), reason: "paused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			p, m := setupProcessor(false)

			m.digests.On("GetByID", ctx, "digest-1").Return(tt.digest, nil)
			m.publisher.On("Publish", mock.MatchedBy(func(e events.DigestRunSkippedEvent) bool {
				return e.DigestID == "digest-1" && e.Reason == tt.reason
			})).Return(nil).Once()

			result, err := p.Process(ctx, "digest-1", ProcessOptions{RunType: entities.RunTypeManual})

			require.NoError(t, err)
			assert.True(t, result.Skipped)
			assert.Equal(t, tt.reason, result.SkipReason)
			assert.Nil(t, result.Run)
			m.runs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			m.source.AssertNotCalled(t, "FetchSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			m.publisher.AssertExpectations(t)
		})
	}
}

func TestDigestProcessor_Process_DigestNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, m := setupProcessor(false)

	m.digests.On("GetByID", ctx, "missing").Return(nil, nil)

	result, err := p.Process(ctx, "missing", ProcessOptions{RunType: entities.RunTypeManual})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, entities.ErrDigestNotFound)
	m.runs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDigestProcessor_Process_InvalidRunType(t *testing.T) {
	t.Parallel()
	p, m := setupProcessor(false)

	_, err := p.Process(context.Background(), "digest-1", ProcessOptions{RunType: "nightly"})

	require.Error(t, err)
	m.digests.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestDigestProcessor_Process_EmptyBatchAdvancesCheckTimeOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, m := setupProcessor(true)

	lastCheck := processorNow.Add(-time.Hour)
	digest := createTestDigest(withWatermark("evt-9", lastCheck))

	m.digests.On("GetByID", ctx, "digest-1").Return(digest, nil)
	m.runs.On("Create", ctx, mock.Anything).Return(nil)
	m.templates.On("GetByID", ctx, "tmpl-1").Return(&entities.Template{ID: "tmpl-1"}, nil)
	// the bus returns the watermark event itself plus one that does not match
	m.source.On("FetchSince", ctx, digest.LastEventUID, lastCheck, mock.Anything).Return([]entities.DigestEvent{
		digestEvent("evt-9", "file.share", 2*time.Hour),
		digestEvent("evt-10", "comment.create", 30*time.Minute),
	}, nil)
	m.runs.On("Complete", ctx, mock.MatchedBy(func(r *entities.Run) bool {
		return r.Status == entities.RunStatusSuccess && r.EventsCount == 0 && r.EmailsSent == 0
	})).Return(nil).Once()
	m.digests.On("UpdateWatermark", ctx, "digest-1", mock.MatchedBy(func(u entities.WatermarkUpdate) bool {
		return u.LastEventUID == nil && u.LastCheckAt.Equal(processorNow)
	})).Return(nil).Once()
	m.publisher.On("Publish", mock.AnythingOfType("events.DigestRunCompletedEvent")).Return(nil)

	result, err := p.Process(ctx, "digest-1", ProcessOptions{RunType: entities.RunTypeScheduled})

	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsFetched, "watermark event is trimmed")
	assert.Equal(t, "[]", string(result.Run.EventsSnapshot))
	assert.Nil(t, result.Run.EventUIDEnd)
	m.sender.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.source.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
	m.archive.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.runs.AssertExpectations(t)
	m.digests.AssertExpectations(t)
}

func TestDigestProcessor_Process_OnlyLeadingDuplicateIsTrimmed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, m := setupProcessor(false)

	digest := createTestDigest(withWatermark("evt-5", processorNow.Add(-time.Hour)))

	m.digests.On("GetByID", ctx, "digest-1").Return(digest, nil)
	m.runs.On("Create", ctx, mock.Anything).Return(nil)
	m.templates.On("GetByID", ctx, "tmpl-1").Return(&entities.Template{}, nil)
	m.source.On("FetchSince", ctx, mock.Anything, mock.Anything, mock.Anything).Return([]entities.DigestEvent{
		digestEvent("evt-6", "file.share", 40*time.Minute),
		digestEvent("evt-5", "file.share", 50*time.Minute),
	}, nil)
	m.sender.On("SendBatch", ctx, mock.Anything, mock.Anything,
		mock.MatchedBy(func(evts []entities.DigestEvent) bool { return len(evts) == 2 }),
		mock.Anything, mock.Anything).Return(entities.SendResult{Sent: 2}, nil).Once()
	m.runs.On("Complete", ctx, mock.Anything).Return(nil)
	m.digests.On("UpdateWatermark", ctx, "digest-1", mock.Anything).Return(nil)
	m.source.On("Emit", ctx, mock.Anything).Return(nil)
	m.publisher.On("Publish", mock.Anything).Return(nil)

	result, err := p.Process(ctx, "digest-1", ProcessOptions{RunType: entities.RunTypeScheduled})

	require.NoError(t, err)
	assert.Equal(t, 2, result.EventsFetched)
	m.sender.AssertExpectations(t)
}

func TestDigestProcessor_Process_TestRunLeavesWatermark(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, m := setupProcessor(false)

	digest := createTestDigest(withWatermark("evt-1", processorNow.Add(-time.Hour)))
	triggeredBy := "user-42"

	m.digests.On("GetByID", ctx, "digest-1").Return(digest, nil)
	m.runs.On("Create", ctx, mock.MatchedBy(func(r *entities.Run) bool {
		return r.RunType == entities.RunTypeTest && r.TriggeredBy != nil && *r.TriggeredBy == "user-42"
	})).Return(nil).Once()
	m.templates.On("GetByID", ctx, "tmpl-1").Return(&entities.Template{}, nil)
	m.source.On("FetchSince", ctx, mock.Anything, mock.Anything, mock.Anything).
		Return([]entities.DigestEvent{digestEvent("evt-2", "file.share", time.Minute)}, nil)
	m.sender.On("SendBatch", ctx, mock.Anything, mock.Anything, mock.Anything, []string{"dev@example.test"}, mock.Anything).
		Return(entities.SendResult{Sent: 1}, nil).Once()
	m.runs.On("Complete", ctx, mock.Anything).Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("events.DigestRunCompletedEvent")).Return(nil)

	result, err := p.Process(ctx, "digest-1", ProcessOptions{
		RunType:     entities.RunTypeTest,
		TriggeredBy: &triggeredBy,
		TestEmail:   "dev@example.test",
	})

	require.NoError(t, err)
	assert.Equal(t, entities.RunStatusSuccess, result.Run.Status)
	m.digests.AssertNotCalled(t, "UpdateWatermark", mock.Anything, mock.Anything, mock.Anything)
	m.source.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
	m.sender.AssertExpectations(t)
}

func TestDigestProcessor_Process_FailurePaths(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("event bus returned 503")

	tests := []struct {
		name      string
		digest    *entities.Digest
		opts      ProcessOptions
		setup     func(m *processorMocks)
		wantErrIs error
	}{
		{
			name:   "template missing",
			digest: createTestDigest(),
			opts:   ProcessOptions{RunType: entities.RunTypeManual},
			setup: func(m *processorMocks) {
				m.templates.On("GetByID", mock.Anything, "tmpl-1").Return(nil, nil)
			},
			wantErrIs: entities.ErrTemplateNotFound,
		},
		{
			name:   "fetch fails",
			digest: createTestDigest(),
			opts:   ProcessOptions{RunType: entities.RunTypeScheduled},
			setup: func(m *processorMocks) {
				m.templates.On("GetByID", mock.Anything, "tmpl-1").Return(&entities.Template{}, nil)
				m.source.On("FetchSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, fetchErr)
			},
			wantErrIs: fetchErr,
		},
		{
			name:   "no recipients",
			digest: createTestDigest(func(d *entities.Digest) { d.Recipients = nil }),
			opts:   ProcessOptions{RunType: entities.RunTypeScheduled},
			setup: func(m *processorMocks) {
				m.templates.On("GetByID", mock.Anything, "tmpl-1").Return(&entities.Template{}, nil)
				m.source.On("FetchSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return([]entities.DigestEvent{digestEvent("evt-1", "file.share", time.Minute)}, nil)
			},
			wantErrIs: entities.ErrNoRecipients,
		},
		{
			name:   "test run without address",
			digest: createTestDigest(func(d *entities.Digest) { d.TestRecipients = nil }),
			opts:   ProcessOptions{RunType: entities.RunTypeTest},
			setup: func(m *processorMocks) {
				m.templates.On("GetByID", mock.Anything, "tmpl-1").Return(&entities.Template{}, nil)
				m.source.On("FetchSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return([]entities.DigestEvent{digestEvent("evt-1", "file.share", time.Minute)}, nil)
			},
			wantErrIs: entities.ErrTestEmailRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			p, m := setupProcessor(false)

			m.digests.On("GetByID", ctx, "digest-1").Return(tt.digest, nil)
			m.runs.On("Create", ctx, mock.Anything).Return(nil)
			tt.setup(m)
			m.runs.On("Complete", ctx, mock.MatchedBy(func(r *entities.Run) bool {
				return r.Status == entities.RunStatusFailed && r.Error != nil && r.DurationMs != nil && r.CompletedAt != nil
			})).Return(nil).Once()
			m.publisher.On("Publish", mock.AnythingOfType("events.DigestRunFailedEvent")).Return(nil).Once()

			result, err := p.Process(ctx, "digest-1", tt.opts)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErrIs)
			require.NotNil(t, result)
			assert.Equal(t, entities.RunStatusFailed, result.Run.Status)
			m.sender.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			m.digests.AssertNotCalled(t, "UpdateWatermark", mock.Anything, mock.Anything, mock.Anything)
			m.runs.AssertExpectations(t)
			m.publisher.AssertExpectations(t)
		})
	}
}

func TestDigestProcessor_Process_WatermarkConflictKeepsRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, m := setupProcessor(false)

	m.digests.On("GetByID", ctx, "digest-1").Return(createTestDigest(), nil)
	m.runs.On("Create", ctx, mock.Anything).Return(nil)
	m.templates.On("GetByID", ctx, "tmpl-1").Return(&entities.Template{}, nil)
	m.source.On("FetchSince", ctx, mock.Anything, mock.Anything, mock.Anything).
		Return([]entities.DigestEvent{digestEvent("evt-1", "file.share", time.Minute)}, nil)
	m.sender.On("SendBatch", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(entities.SendResult{Sent: 2}, nil)
	m.runs.On("Complete", ctx, mock.Anything).Return(nil).Once()
	m.digests.On("UpdateWatermark", ctx, "digest-1", mock.Anything).Return(entities.ErrWatermarkConflict)

	result, err := p.Process(ctx, "digest-1", ProcessOptions{RunType: entities.RunTypeScheduled})

	assert.ErrorIs(t, err, entities.ErrWatermarkConflict)
	require.NotNil(t, result.Run)
	assert.Equal(t, entities.RunStatusSuccess, result.Run.Status)
	m.runs.AssertNumberOfCalls(t, "Complete", 1)
	m.publisher.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestDigestProcessor_Process_ArchivesSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, m := setupProcessor(true)

	m.digests.On("GetByID", ctx, "digest-1").Return(createTestDigest(), nil)
	m.runs.On("Create", ctx, mock.Anything).Return(nil)
	m.templates.On("GetByID", ctx, "tmpl-1").Return(&entities.Template{}, nil)
	m.source.On("FetchSince", ctx, mock.Anything, mock.Anything, mock.Anything).
		Return([]entities.DigestEvent{digestEvent("evt-1", "file.share", time.Minute)}, nil)
	m.sender.On("SendBatch", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(entities.SendResult{Sent: 2}, nil)
	m.archive.On("Put", ctx, mock.MatchedBy(func(key string) bool {
		return len(key) > len("runs/digest-1/") && key[:len("runs/digest-1/")] == "runs/digest-1/"
	}), mock.Anything, mock.AnythingOfType("int64")).Return("runs/digest-1/archived.json", nil).Once()
	m.runs.On("Complete", ctx, mock.MatchedBy(func(r *entities.Run) bool {
		return r.SnapshotKey != nil && *r.SnapshotKey == "runs/digest-1/archived.json"
	})).Return(nil).Once()
	m.digests.On("UpdateWatermark", ctx, "digest-1", mock.Anything).Return(nil)
	m.source.On("Emit", ctx, mock.Anything).Return(errors.New("bus down"))
	m.publisher.On("Publish", mock.Anything).Return(errors.New("nats down"))

	result, err := p.Process(ctx, "digest-1", ProcessOptions{RunType: entities.RunTypeScheduled})

	require.NoError(t, err, "notification failures are not run failures")
	assert.Equal(t, entities.RunStatusSuccess, result.Run.Status)
	m.archive.AssertExpectations(t)
	m.runs.AssertExpectations(t)
}

func TestDigestProcessor_SendTest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, m := setupProcessor(false)

	digest := createTestDigest(withWatermark("evt-7", processorNow.Add(-time.Hour)))
	tmpl := &entities.Template{ID: "tmpl-1"}

	m.digests.On("GetByID", ctx, "digest-1").Return(digest, nil)
	m.templates.On("GetByID", ctx, "tmpl-1").Return(tmpl, nil)
	m.source.On("FetchSince", ctx, (*string)(nil), processorNow.Add(-24*time.Hour), mock.Anything).
		Return([]entities.DigestEvent{digestEvent("evt-7", "file.share", 2*time.Hour)}, nil)
	m.sender.On("SendTest", ctx, tmpl, mock.Anything, "qa@example.test", mock.MatchedBy(func(meta entities.DigestMeta) bool {
		return meta.RunType == entities.RunTypeTest && meta.RunID == ""
	})).Return("msg-1", nil).Once()

	messageID, err := p.SendTest(ctx, "digest-1", "")

	require.NoError(t, err)
	assert.Equal(t, "msg-1", messageID)
	m.runs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.digests.AssertNotCalled(t, "UpdateWatermark", mock.Anything, mock.Anything, mock.Anything)
	m.sender.AssertExpectations(t)
}
