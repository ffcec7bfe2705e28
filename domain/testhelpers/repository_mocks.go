package testhelpers

import (
	"context"
	"io"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/events"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"

	"github.com/stretchr/testify/mock"
)

// MockDigestRepository is a mock implementation of DigestRepository
type MockDigestRepository struct {
	mock.Mock
}

func (m *MockDigestRepository) GetByID(ctx context.Context, id string) (*entities.Digest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Digest), args.Error(1)
}

func (m *MockDigestRepository) ListActive(ctx context.Context) ([]*entities.Digest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Digest), args.Error(1)
}

func (m *MockDigestRepository) UpdateWatermark(ctx context.Context, id string, update entities.WatermarkUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockDigestRepository) SetPaused(ctx context.Context, id string, paused bool) error {
	args := m.Called(ctx, id, paused)
	return args.Error(0)
}

// MockRunRepository is a mock implementation of RunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *entities.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) Complete(ctx context.Context, run *entities.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id string) (*entities.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Run), args.Error(1)
}

func (m *MockRunRepository) ListByDigest(ctx context.Context, digestID string, limit int) ([]*entities.Run, error) {
	args := m.Called(ctx, digestID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Run), args.Error(1)
}

// MockTemplateRepository is a mock implementation of TemplateRepository
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, id string) (*entities.Template, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Template), args.Error(1)
}

// MockDeliveryLogRepository is a mock implementation of DeliveryLogRepository
type MockDeliveryLogRepository struct {
	mock.Mock
}

func (m *MockDeliveryLogRepository) Create(ctx context.Context, entry *entities.DeliveryLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDeliveryLogRepository) MarkSent(ctx context.Context, id int64, providerMessageID string) error {
	args := m.Called(ctx, id, providerMessageID)
	return args.Error(0)
}

func (m *MockDeliveryLogRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *MockDeliveryLogRepository) ListByRun(ctx context.Context, runID string) ([]*entities.DeliveryLog, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.DeliveryLog), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockEventSource is a mock implementation of EventSource
type MockEventSource struct {
	mock.Mock
}

func (m *MockEventSource) FetchSince(ctx context.Context, lastUID *string, since time.Time, hints entities.FetchHints) ([]entities.DigestEvent, error) {
	args := m.Called(ctx, lastUID, since, hints)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.DigestEvent), args.Error(1)
}

func (m *MockEventSource) Emit(ctx context.Context, event interfaces.BusEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockEmailProvider is a mock implementation of EmailProvider
type MockEmailProvider struct {
	mock.Mock
}

func (m *MockEmailProvider) Send(ctx context.Context, msg entities.EmailMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

// MockTemplateRenderer is a mock implementation of TemplateRenderer
type MockTemplateRenderer struct {
	mock.Mock
}

func (m *MockTemplateRenderer) Render(tmpl *entities.Template, evts []entities.DigestEvent, meta entities.DigestMeta) (*entities.RenderedMessage, error) {
	args := m.Called(tmpl, evts, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.RenderedMessage), args.Error(1)
}

// MockSnapshotArchive is a mock implementation of SnapshotArchive
type MockSnapshotArchive struct {
	mock.Mock
}

func (m *MockSnapshotArchive) Put(ctx context.Context, key string, body io.Reader, size int64) (string, error) {
	args := m.Called(ctx, key, body, size)
	return args.String(0), args.Error(1)
}

// MockMessageSender is a mock implementation of MessageSender
type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) SendBatch(ctx context.Context, run *entities.Run, tmpl *entities.Template, evts []entities.DigestEvent, recipients []string, meta entities.DigestMeta) (entities.SendResult, error) {
	args := m.Called(ctx, run, tmpl, evts, recipients, meta)
	return args.Get(0).(entities.SendResult), args.Error(1)
}

func (m *MockMessageSender) SendTest(ctx context.Context, tmpl *entities.Template, evts []entities.DigestEvent, recipient string, meta entities.DigestMeta) (string, error) {
	args := m.Called(ctx, tmpl, evts, recipient, meta)
	return args.String(0), args.Error(1)
}

// MockEventSubscriber is a mock implementation of EventSubscriber
type MockEventSubscriber struct {
	mock.Mock
}

func (m *MockEventSubscriber) Subscribe(eventType events.EventType, handler func(context.Context, events.Event) error) error {
	args := m.Called(eventType, handler)
	return args.Error(0)
}
