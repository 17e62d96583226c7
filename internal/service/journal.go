package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"challenge-server/internal/cache"
	"challenge-server/internal/challenge"
	"challenge-server/internal/messaging"
	"challenge-server/internal/models"
	"challenge-server/internal/repository"

	"go.uber.org/zap"
)

// Формат отображаемой даты дневной записи.
const recordDateFormat = "January 2, 2006"

// SnapshotNotifier рассылает подписчикам свежие снапшоты после изменения
// данных и фрагменты потокового AI-анализа.
type SnapshotNotifier interface {
	NotifyOwnerRecords(ownerID string, records []*models.ChallengeRecord)
	NotifyPublicStatuses(statuses []*models.PublicStatus)
	NotifyAnalysisChunk(ownerID, mode, text string, done bool)
}

// Completer выполняет один AI-запрос с ретраями, целиком или потоково.
type Completer interface {
	Complete(ctx context.Context, ownerID, systemPrompt, userInput string) (string, error)
	CompleteStream(ctx context.Context, ownerID, systemPrompt, userInput string, chunkHandler func(string) error) (string, error)
}

// TodayInfo - состояние текущего дня для пользователя.
type TodayInfo struct {
	Day       int                     `json:"day"`
	RawDay    int                     `json:"rawDay"`
	Date      string                  `json:"date"`
	Phase     challenge.Phase         `json:"phase"`
	Submitted bool                    `json:"submitted"`
	Record    *models.ChallengeRecord `json:"record,omitempty"`
}

// AnalysisResult - результат AI-анализа дневника.
type AnalysisResult struct {
	Mode   string `json:"mode"`
	Text   string `json:"text"`
	Cached bool   `json:"cached"`
}

// JournalService реализует основной сценарий дневника: одна запись в день,
// публичная проекция статуса и AI-анализ накопленного журнала.
type JournalService struct {
	records   repository.RecordRepository
	statuses  repository.StatusRepository
	publisher messaging.StatusPublisher
	notifier  SnapshotNotifier
	analyses  cache.AnalysisCache
	completer Completer
	schedule  challenge.Schedule
	now       func() time.Time
	logger    *zap.Logger
}

// NewJournalService создает новый JournalService.
func NewJournalService(
	records repository.RecordRepository,
	statuses repository.StatusRepository,
	publisher messaging.StatusPublisher,
	notifier SnapshotNotifier,
	analyses cache.AnalysisCache,
	completer Completer,
	schedule challenge.Schedule,
	logger *zap.Logger,
) *JournalService {
	return &JournalService{
		records:   records,
		statuses:  statuses,
		publisher: publisher,
		notifier:  notifier,
		analyses:  analyses,
		completer: completer,
		schedule:  schedule,
		now:       time.Now,
		logger:    logger.Named("JournalService"),
	}
}

// WithClock подменяет источник текущего времени (используется в тестах).
func (s *JournalService) WithClock(now func() time.Time) *JournalService {
	s.now = now
	return s
}

// normalizeEntries приводит ввод к ровно пяти ключам-архетипам.
// Неизвестный ключ - ошибка, отсутствующий заполняется пустой строкой.
func normalizeEntries(input map[string]string) (models.Entries, error) {
	for key := range input {
		if !models.Archetype(key).IsValid() {
			return nil, fmt.Errorf("%w: '%s'", models.ErrUnknownArchetype, key)
		}
	}
	entries := models.Entries{}
	for _, a := range models.Archetypes() {
		entries[a] = input[string(a)]
	}
	return entries, nil
}

// Submit сохраняет запись за текущий день. Если запись за этот день уже
// существует, возвращает ее без изменений (повторная отправка - no-op).
func (s *JournalService) Submit(ctx context.Context, ownerID string, input map[string]string) (*models.ChallengeRecord, error) {
	entries, err := normalizeEntries(input)
	if err != nil {
		return nil, err
	}
	if !entries.HasContent() {
		return nil, models.ErrEmptyEntries
	}

	now := s.now()
	day := s.schedule.DayAt(now)
	if phase := s.schedule.PhaseAt(now); phase != challenge.PhaseActive {
		return nil, fmt.Errorf("%w: phase is '%s'", models.ErrChallengeNotActive, phase)
	}

	existing, err := s.records.GetByDay(ctx, ownerID, day.Raw)
	if err == nil {
		s.logger.Info("Запись за день уже существует, повторная отправка игнорируется",
			zap.String("ownerID", ownerID),
			zap.Int("day", day.Raw))
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("ошибка проверки существующей записи: %w", err)
	}

	rec := &models.ChallengeRecord{
		OwnerID:   ownerID,
		Day:       day.Raw,
		Date:      now.Format(recordDateFormat),
		Entries:   entries,
		Timestamp: now.UnixMilli(),
	}
	if err := s.records.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("ошибка сохранения записи: %w", err)
	}

	// Публичная проекция производна от записи: сбой проекции не откатывает
	// сохраненную запись, проекцию можно перестроить позже.
	status := models.StatusFromRecord(rec)
	if err := s.statuses.Upsert(ctx, status); err != nil {
		s.logger.Error("Ошибка сохранения публичной проекции статуса",
			zap.String("ownerID", ownerID),
			zap.Int("day", rec.Day),
			zap.Error(err))
	} else if err := s.publisher.Publish(ctx, messaging.DailyStatusEvent{
		OwnerID:   status.OwnerID,
		Day:       status.Day,
		Date:      status.Date,
		Status:    status.Status,
		Timestamp: status.Timestamp,
	}); err != nil {
		s.logger.Warn("Ошибка публикации события статуса",
			zap.String("ownerID", ownerID),
			zap.Int("day", rec.Day),
			zap.Error(err))
	}

	s.pushSnapshots(ctx, ownerID)

	s.logger.Info("Дневная запись сохранена",
		zap.String("ownerID", ownerID),
		zap.Int("day", rec.Day),
		zap.String("date", rec.Date))
	return rec, nil
}

// pushSnapshots рассылает подписчикам полные снапшоты после изменения данных.
func (s *JournalService) pushSnapshots(ctx context.Context, ownerID string) {
	if s.notifier == nil {
		return
	}
	records, err := s.records.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Error("Не удалось собрать снапшот записей", zap.String("ownerID", ownerID), zap.Error(err))
	} else {
		s.notifier.NotifyOwnerRecords(ownerID, records)
	}

	statuses, err := s.statuses.List(ctx)
	if err != nil {
		s.logger.Error("Не удалось собрать снапшот статусов", zap.Error(err))
	} else {
		s.notifier.NotifyPublicStatuses(statuses)
	}
}

// History возвращает все записи пользователя по возрастанию дня.
func (s *JournalService) History(ctx context.Context, ownerID string) ([]*models.ChallengeRecord, error) {
	return s.records.ListByOwner(ctx, ownerID)
}

// Statuses возвращает публичные статусы всех участников.
func (s *JournalService) Statuses(ctx context.Context) ([]*models.PublicStatus, error) {
	return s.statuses.List(ctx)
}

// Today возвращает состояние текущего дня: индекс, фазу и наличие записи.
func (s *JournalService) Today(ctx context.Context, ownerID string) (*TodayInfo, error) {
	now := s.now()
	day := s.schedule.DayAt(now)

	info := &TodayInfo{
		Day:    day.Clamped,
		RawDay: day.Raw,
		Date:   now.Format(recordDateFormat),
		Phase:  s.schedule.PhaseAt(now),
	}

	// Запись ищем только по Raw: Clamped может указывать на чужой день окна.
	rec, err := s.records.GetByDay(ctx, ownerID, day.Raw)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return info, nil
		}
		return nil, err
	}
	info.Submitted = true
	info.Record = rec
	return info, nil
}

// Analyze строит AI-анализ всего журнала пользователя. Неизменившийся журнал
// отдается из кэша без обращения к AI.
func (s *JournalService) Analyze(ctx context.Context, ownerID, mode string) (*AnalysisResult, error) {
	systemPrompt, err := SystemPromptFor(mode)
	if err != nil {
		return nil, err
	}

	records, err := s.records.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки журнала: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: журнал пуст", models.ErrNotFound)
	}

	contentHash := cache.RecordSetHash(records)
	if s.analyses != nil {
		if text, ok, cacheErr := s.analyses.Get(ctx, ownerID, mode, contentHash); cacheErr == nil && ok {
			return &AnalysisResult{Mode: mode, Text: text, Cached: true}, nil
		}
	}

	text, err := s.completer.Complete(ctx, ownerID, systemPrompt, FlattenRecords(records))
	if err != nil {
		return nil, err
	}

	if s.analyses != nil {
		if cacheErr := s.analyses.Set(ctx, ownerID, mode, contentHash, text); cacheErr != nil {
			s.logger.Warn("Не удалось сохранить анализ в кэш",
				zap.String("ownerID", ownerID),
				zap.String("mode", mode),
				zap.Error(cacheErr))
		}
	}

	return &AnalysisResult{Mode: mode, Text: text, Cached: false}, nil
}

// AnalyzeStream строит AI-анализ потоково: каждый фрагмент сразу уходит
// WebSocket-подписчикам владельца, финальный результат возвращается целиком
// и кэшируется. Попадание в кэш отдается одним фрагментом без обращения к AI.
func (s *JournalService) AnalyzeStream(ctx context.Context, ownerID, mode string) (*AnalysisResult, error) {
	systemPrompt, err := SystemPromptFor(mode)
	if err != nil {
		return nil, err
	}

	records, err := s.records.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки журнала: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: журнал пуст", models.ErrNotFound)
	}

	contentHash := cache.RecordSetHash(records)
	if s.analyses != nil {
		if text, ok, cacheErr := s.analyses.Get(ctx, ownerID, mode, contentHash); cacheErr == nil && ok {
			s.notifyChunk(ownerID, mode, text, false)
			s.notifyChunk(ownerID, mode, "", true)
			return &AnalysisResult{Mode: mode, Text: text, Cached: true}, nil
		}
	}

	text, err := s.completer.CompleteStream(ctx, ownerID, systemPrompt, FlattenRecords(records), func(chunk string) error {
		s.notifyChunk(ownerID, mode, chunk, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyChunk(ownerID, mode, "", true)

	if s.analyses != nil {
		if cacheErr := s.analyses.Set(ctx, ownerID, mode, contentHash, text); cacheErr != nil {
			s.logger.Warn("Не удалось сохранить анализ в кэш",
				zap.String("ownerID", ownerID),
				zap.String("mode", mode),
				zap.Error(cacheErr))
		}
	}

	return &AnalysisResult{Mode: mode, Text: text, Cached: false}, nil
}

func (s *JournalService) notifyChunk(ownerID, mode, text string, done bool) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyAnalysisChunk(ownerID, mode, text, done)
}
