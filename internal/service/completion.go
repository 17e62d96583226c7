package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"challenge-server/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// attemptOutcome - явный исход одной попытки обращения к AI.
type attemptOutcome string

const (
	outcomeSuccess     attemptOutcome = "success"
	outcomeRateLimited attemptOutcome = "rate_limited"
	outcomeFailed      attemptOutcome = "failed"
)

var completionAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "challenge_completion_attempts_total",
		Help: "Completion attempts by outcome.",
	},
	[]string{"outcome"},
)

// CompletionError - терминальная ошибка после исчерпания всех попыток.
type CompletionError struct {
	Attempts int
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// sleepFunc позволяет подменить ожидание между попытками в тестах.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CompletionService выполняет запросы к AI с ретраями и экспоненциальной
// задержкой. Одновременно допускается только один активный запрос:
// повторный вызов во время выполнения возвращает ErrCompletionPending.
type CompletionService struct {
	aiClient    AIClient
	maxAttempts int
	baseDelay   time.Duration
	sleep       sleepFunc
	logger      *zap.Logger

	pending atomic.Bool
	errMu   sync.RWMutex
	lastErr error
}

// NewCompletionService создает новый CompletionService.
func NewCompletionService(aiClient AIClient, maxAttempts int, baseDelay time.Duration, logger *zap.Logger) *CompletionService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &CompletionService{
		aiClient:    aiClient,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepWithContext,
		logger:      logger.Named("CompletionService"),
	}
}

// Pending сообщает, выполняется ли сейчас запрос.
func (s *CompletionService) Pending() bool {
	return s.pending.Load()
}

// Err возвращает терминальную ошибку последнего запроса.
// Сбрасывается в начале каждого нового запроса.
func (s *CompletionService) Err() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.lastErr
}

func (s *CompletionService) setErr(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// Complete выполняет запрос к AI с ретраями. Rate limit (HTTP 429) при
// оставшихся попытках не считается терминальным исходом.
func (s *CompletionService) Complete(ctx context.Context, ownerID, systemPrompt, userInput string) (string, error) {
	if !s.pending.CompareAndSwap(false, true) {
		return "", models.ErrCompletionPending
	}
	defer s.pending.Store(false)

	// Новый запрос очищает ошибку предыдущего.
	s.setErr(nil)

	var lastAttemptErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		text, usage, err := s.aiClient.GenerateText(ctx, ownerID, systemPrompt, userInput)
		if err == nil {
			completionAttemptsTotal.With(prometheus.Labels{"outcome": string(outcomeSuccess)}).Inc()
			s.logger.Info("Запрос к AI выполнен",
				zap.String("ownerID", ownerID),
				zap.Int("attempt", attempt),
				zap.Int("total_tokens", usage.TotalTokens))
			return text, nil
		}

		outcome := outcomeFailed
		if isRateLimited(err) {
			outcome = outcomeRateLimited
		}
		completionAttemptsTotal.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
		lastAttemptErr = err

		if attempt == s.maxAttempts {
			break
		}

		delay := s.backoffDelay(attempt)
		s.logger.Warn("Попытка запроса к AI не удалась, повтор",
			zap.String("ownerID", ownerID),
			zap.Int("attempt", attempt),
			zap.String("outcome", string(outcome)),
			zap.Duration("delay", delay),
			zap.Error(err))

		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			termErr := &CompletionError{Attempts: attempt, Err: sleepErr}
			s.setErr(termErr)
			return "", termErr
		}
	}

	termErr := &CompletionError{Attempts: s.maxAttempts, Err: lastAttemptErr}
	s.setErr(termErr)
	s.logger.Error("Все попытки запроса к AI исчерпаны",
		zap.String("ownerID", ownerID),
		zap.Int("attempts", s.maxAttempts),
		zap.Error(lastAttemptErr))
	return "", termErr
}

// CompleteStream выполняет потоковый запрос к AI, передавая каждый фрагмент
// в chunkHandler, и возвращает накопленный полный текст. Ретраи возможны
// только пока ни один фрагмент не ушел наружу: после первого доставленного
// фрагмента ошибка сразу терминальна - повтор начал бы текст заново.
func (s *CompletionService) CompleteStream(ctx context.Context, ownerID, systemPrompt, userInput string, chunkHandler func(string) error) (string, error) {
	if !s.pending.CompareAndSwap(false, true) {
		return "", models.ErrCompletionPending
	}
	defer s.pending.Store(false)

	s.setErr(nil)

	var lastAttemptErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var full strings.Builder
		delivered := false

		usage, err := s.aiClient.GenerateTextStream(ctx, ownerID, systemPrompt, userInput, func(chunk string) error {
			if chunk == "" {
				return nil
			}
			full.WriteString(chunk)
			delivered = true
			if chunkHandler != nil {
				return chunkHandler(chunk)
			}
			return nil
		})
		if err == nil {
			completionAttemptsTotal.With(prometheus.Labels{"outcome": string(outcomeSuccess)}).Inc()
			s.logger.Info("Потоковый запрос к AI выполнен",
				zap.String("ownerID", ownerID),
				zap.Int("attempt", attempt),
				zap.Int("total_tokens", usage.TotalTokens))
			return full.String(), nil
		}

		outcome := outcomeFailed
		if isRateLimited(err) {
			outcome = outcomeRateLimited
		}
		completionAttemptsTotal.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
		lastAttemptErr = err

		if delivered || attempt == s.maxAttempts {
			termErr := &CompletionError{Attempts: attempt, Err: lastAttemptErr}
			s.setErr(termErr)
			s.logger.Error("Потоковый запрос к AI завершился ошибкой",
				zap.String("ownerID", ownerID),
				zap.Int("attempt", attempt),
				zap.Bool("partial_output", delivered),
				zap.Error(lastAttemptErr))
			return "", termErr
		}

		delay := s.backoffDelay(attempt)
		s.logger.Warn("Потоковая попытка запроса к AI не удалась, повтор",
			zap.String("ownerID", ownerID),
			zap.Int("attempt", attempt),
			zap.String("outcome", string(outcome)),
			zap.Duration("delay", delay),
			zap.Error(err))

		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			termErr := &CompletionError{Attempts: attempt, Err: sleepErr}
			s.setErr(termErr)
			return "", termErr
		}
	}

	termErr := &CompletionError{Attempts: s.maxAttempts, Err: lastAttemptErr}
	s.setErr(termErr)
	return "", termErr
}

// backoffDelay возвращает задержку после неудачной попытки attempt:
// base * 2^(attempt-1) с джиттером ±10%, но не меньше base.
func (s *CompletionService) backoffDelay(attempt int) time.Duration {
	delay := s.baseDelay * (1 << (attempt - 1))
	jitter := time.Duration(rand.Int63n(int64(delay)/5+1)) - delay/10
	delay += jitter
	if delay < s.baseDelay {
		delay = s.baseDelay
	}
	return delay
}

// isRateLimited распознает ответ HTTP 429 от OpenAI-совместимого API.
func isRateLimited(err error) bool {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return false
}
