package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"challenge-server/internal/models"

	openaigo "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedAIClient возвращает заранее заданные результаты по порядку вызовов.
type scriptedAIClient struct {
	mu      sync.Mutex
	calls   int
	results []scriptedResult
	block   chan struct{} // если задан, GenerateText ждет закрытия канала

	streamCalls   int
	streamResults []streamResult
}

type scriptedResult struct {
	text string
	err  error
}

// streamResult описывает один потоковый вызов: фрагменты, отданные
// обработчику, и финальная ошибка (nil - успешное завершение стрима).
type streamResult struct {
	chunks []string
	err    error
}

func (c *scriptedAIClient) GenerateText(ctx context.Context, ownerID, systemPrompt, userInput string) (string, UsageInfo, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.results) {
		return "", UsageInfo{}, errors.New("unexpected call")
	}
	res := c.results[c.calls]
	c.calls++
	return res.text, UsageInfo{}, res.err
}

func (c *scriptedAIClient) GenerateTextStream(ctx context.Context, ownerID, systemPrompt, userInput string, chunkHandler func(string) error) (UsageInfo, error) {
	c.mu.Lock()
	if c.streamCalls >= len(c.streamResults) {
		c.mu.Unlock()
		return UsageInfo{}, errors.New("unexpected stream call")
	}
	res := c.streamResults[c.streamCalls]
	c.streamCalls++
	c.mu.Unlock()

	for _, chunk := range res.chunks {
		if err := chunkHandler(chunk); err != nil {
			return UsageInfo{}, err
		}
	}
	return UsageInfo{}, res.err
}

func (c *scriptedAIClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func rateLimitErr() error {
	return &openaigo.APIError{HTTPStatusCode: 429, Message: "rate limit exceeded"}
}

// recordSleeps подменяет ожидание между попытками и записывает задержки.
func recordSleeps(s *CompletionService) *[]time.Duration {
	var waits []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return &waits
}

func TestCompletionService_RetriesRateLimitThenSucceeds(t *testing.T) {
	ai := &scriptedAIClient{results: []scriptedResult{
		{err: rateLimitErr()},
		{err: rateLimitErr()},
		{text: "third time lucky"},
	}}
	svc := NewCompletionService(ai, 3, time.Second, zap.NewNop())
	waits := recordSleeps(svc)

	text, err := svc.Complete(context.Background(), "owner-1", "system", "input")
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", text)
	assert.Equal(t, 3, ai.callCount())

	// Две задержки: ~1s и ~2s (экспонента с джиттером ±10%, не меньше base).
	require.Len(t, *waits, 2)
	assert.GreaterOrEqual(t, (*waits)[0], time.Second)
	assert.LessOrEqual(t, (*waits)[0], 1100*time.Millisecond)
	assert.GreaterOrEqual(t, (*waits)[1], 1800*time.Millisecond)
	assert.LessOrEqual(t, (*waits)[1], 2200*time.Millisecond)

	assert.NoError(t, svc.Err())
	assert.False(t, svc.Pending())
}

func TestCompletionService_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("upstream down")
	ai := &scriptedAIClient{results: []scriptedResult{
		{err: boom}, {err: boom}, {err: boom},
	}}
	svc := NewCompletionService(ai, 3, time.Millisecond, zap.NewNop())
	waits := recordSleeps(svc)

	_, err := svc.Complete(context.Background(), "owner-1", "system", "")
	require.Error(t, err)

	var compErr *CompletionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, 3, compErr.Attempts)
	assert.ErrorIs(t, err, boom)

	// Ровно maxAttempts вызовов и maxAttempts-1 ожиданий.
	assert.Equal(t, 3, ai.callCount())
	assert.Len(t, *waits, 2)

	// Терминальная ошибка видна через Err().
	assert.ErrorAs(t, svc.Err(), &compErr)
}

func TestCompletionService_ErrClearedOnNewCall(t *testing.T) {
	ai := &scriptedAIClient{results: []scriptedResult{
		{err: errors.New("boom")},
		{text: "recovered"},
	}}
	svc := NewCompletionService(ai, 1, time.Millisecond, zap.NewNop())
	recordSleeps(svc)

	_, err := svc.Complete(context.Background(), "owner-1", "system", "")
	require.Error(t, err)
	require.Error(t, svc.Err())

	text, err := svc.Complete(context.Background(), "owner-1", "system", "")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.NoError(t, svc.Err())
}

func TestCompletionService_RejectsOverlappingCalls(t *testing.T) {
	block := make(chan struct{})
	ai := &scriptedAIClient{
		results: []scriptedResult{{text: "ok"}},
		block:   block,
	}
	svc := NewCompletionService(ai, 3, time.Second, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.Complete(context.Background(), "owner-1", "system", "")
		assert.NoError(t, err)
	}()

	// Дожидаемся, пока первый вызов станет активным.
	require.Eventually(t, svc.Pending, time.Second, 5*time.Millisecond)

	_, err := svc.Complete(context.Background(), "owner-1", "system", "")
	assert.ErrorIs(t, err, models.ErrCompletionPending)

	close(block)
	<-done
	assert.False(t, svc.Pending())
}

func TestCompletionService_StreamRetriesBeforeFirstChunk(t *testing.T) {
	ai := &scriptedAIClient{streamResults: []streamResult{
		{err: rateLimitErr()},
		{chunks: []string{"Hello ", "world"}},
	}}
	svc := NewCompletionService(ai, 3, time.Second, zap.NewNop())
	waits := recordSleeps(svc)

	var received []string
	text, err := svc.CompleteStream(context.Background(), "owner-1", "system", "input", func(chunk string) error {
		received = append(received, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, []string{"Hello ", "world"}, received)

	// Пока наружу не ушло ни одного фрагмента, ретрай разрешен.
	assert.Len(t, *waits, 1)
	assert.NoError(t, svc.Err())
}

func TestCompletionService_StreamTerminalAfterPartialOutput(t *testing.T) {
	boom := errors.New("connection reset")
	ai := &scriptedAIClient{streamResults: []streamResult{
		{chunks: []string{"partial "}, err: boom},
	}}
	svc := NewCompletionService(ai, 3, time.Second, zap.NewNop())
	waits := recordSleeps(svc)

	_, err := svc.CompleteStream(context.Background(), "owner-1", "system", "", nil)
	require.Error(t, err)

	// После доставленного фрагмента повтор начал бы текст заново,
	// поэтому ошибка терминальна сразу, без новых попыток.
	var compErr *CompletionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, 1, compErr.Attempts)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, *waits)
	assert.Equal(t, 1, ai.streamCalls)
	assert.ErrorAs(t, svc.Err(), &compErr)
}

func TestCompletionService_StreamRejectsOverlappingCalls(t *testing.T) {
	block := make(chan struct{})
	ai := &scriptedAIClient{
		results: []scriptedResult{{text: "ok"}},
		block:   block,
	}
	svc := NewCompletionService(ai, 3, time.Second, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.Complete(context.Background(), "owner-1", "system", "")
		assert.NoError(t, err)
	}()
	require.Eventually(t, svc.Pending, time.Second, 5*time.Millisecond)

	// Обычный и потоковый вызовы делят один слот.
	_, err := svc.CompleteStream(context.Background(), "owner-1", "system", "", nil)
	assert.ErrorIs(t, err, models.ErrCompletionPending)

	close(block)
	<-done
}

func TestCompletionService_SleepCancelled(t *testing.T) {
	ai := &scriptedAIClient{results: []scriptedResult{
		{err: rateLimitErr()},
	}}
	svc := NewCompletionService(ai, 3, time.Second, zap.NewNop())
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := svc.Complete(context.Background(), "owner-1", "system", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ai.callCount())
}
