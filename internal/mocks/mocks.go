// Package mocks содержит моки интерфейсов для юнит-тестов.
package mocks

import (
	"context"

	"challenge-server/internal/cache"
	"challenge-server/internal/messaging"
	"challenge-server/internal/models"
	"challenge-server/internal/repository"
	"challenge-server/internal/service"

	"github.com/stretchr/testify/mock"
)

// --- RecordRepository ---

type RecordRepository struct {
	mock.Mock
}

var _ repository.RecordRepository = (*RecordRepository)(nil)

func (m *RecordRepository) Upsert(ctx context.Context, rec *models.ChallengeRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *RecordRepository) GetByDay(ctx context.Context, ownerID string, day int) (*models.ChallengeRecord, error) {
	args := m.Called(ctx, ownerID, day)
	var rec *models.ChallengeRecord
	if args.Get(0) != nil {
		rec = args.Get(0).(*models.ChallengeRecord)
	}
	return rec, args.Error(1)
}

func (m *RecordRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.ChallengeRecord, error) {
	args := m.Called(ctx, ownerID)
	var recs []*models.ChallengeRecord
	if args.Get(0) != nil {
		recs = args.Get(0).([]*models.ChallengeRecord)
	}
	return recs, args.Error(1)
}

// --- StatusRepository ---

type StatusRepository struct {
	mock.Mock
}

var _ repository.StatusRepository = (*StatusRepository)(nil)

func (m *StatusRepository) Upsert(ctx context.Context, status *models.PublicStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

func (m *StatusRepository) List(ctx context.Context) ([]*models.PublicStatus, error) {
	args := m.Called(ctx)
	var statuses []*models.PublicStatus
	if args.Get(0) != nil {
		statuses = args.Get(0).([]*models.PublicStatus)
	}
	return statuses, args.Error(1)
}

// --- StatusPublisher ---

type StatusPublisher struct {
	mock.Mock
}

var _ messaging.StatusPublisher = (*StatusPublisher)(nil)

func (m *StatusPublisher) Publish(ctx context.Context, event messaging.DailyStatusEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// --- AnalysisCache ---

type AnalysisCache struct {
	mock.Mock
}

var _ cache.AnalysisCache = (*AnalysisCache)(nil)

func (m *AnalysisCache) Get(ctx context.Context, ownerID, mode, contentHash string) (string, bool, error) {
	args := m.Called(ctx, ownerID, mode, contentHash)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *AnalysisCache) Set(ctx context.Context, ownerID, mode, contentHash, text string) error {
	args := m.Called(ctx, ownerID, mode, contentHash, text)
	return args.Error(0)
}

// --- AIClient ---

type AIClient struct {
	mock.Mock
}

var _ service.AIClient = (*AIClient)(nil)

func (m *AIClient) GenerateText(ctx context.Context, ownerID string, systemPrompt string, userInput string) (string, service.UsageInfo, error) {
	args := m.Called(ctx, ownerID, systemPrompt, userInput)
	usage, _ := args.Get(1).(service.UsageInfo)
	return args.String(0), usage, args.Error(2)
}

func (m *AIClient) GenerateTextStream(ctx context.Context, ownerID string, systemPrompt string, userInput string, chunkHandler func(string) error) (service.UsageInfo, error) {
	args := m.Called(ctx, ownerID, systemPrompt, userInput, chunkHandler)
	usage, _ := args.Get(0).(service.UsageInfo)
	return usage, args.Error(1)
}

// --- Completer ---

type Completer struct {
	mock.Mock
}

var _ service.Completer = (*Completer)(nil)

func (m *Completer) Complete(ctx context.Context, ownerID, systemPrompt, userInput string) (string, error) {
	args := m.Called(ctx, ownerID, systemPrompt, userInput)
	return args.String(0), args.Error(1)
}

func (m *Completer) CompleteStream(ctx context.Context, ownerID, systemPrompt, userInput string, chunkHandler func(string) error) (string, error) {
	args := m.Called(ctx, ownerID, systemPrompt, userInput, chunkHandler)
	return args.String(0), args.Error(1)
}

// --- SnapshotNotifier ---

type SnapshotNotifier struct {
	mock.Mock
}

var _ service.SnapshotNotifier = (*SnapshotNotifier)(nil)

func (m *SnapshotNotifier) NotifyOwnerRecords(ownerID string, records []*models.ChallengeRecord) {
	m.Called(ownerID, records)
}

func (m *SnapshotNotifier) NotifyPublicStatuses(statuses []*models.PublicStatus) {
	m.Called(statuses)
}

func (m *SnapshotNotifier) NotifyAnalysisChunk(ownerID, mode, text string, done bool) {
	m.Called(ownerID, mode, text, done)
}
