package service

import (
	"fmt"
	"strings"

	"challenge-server/internal/models"
)

// Режимы анализа дневника.
const (
	AnalysisModeSummary  = "summary"
	AnalysisModeCoaching = "coaching"
)

const summarySystemPrompt = `You are a reflective journaling assistant for a 30-day accountability challenge.
The participant writes a short daily entry for each of five inner archetypes:
king (leadership and decisions), priest (values and conscience), poet (creativity
and emotion), jester (humor and lightness), warrior (discipline and action).

You will receive the participant's journal so far. Write a concise summary of the
journey: recurring themes, visible growth, and which archetypes get the most and
the least attention. Address the participant directly. Do not invent entries that
are not in the journal.`

const coachingSystemPrompt = `You are a supportive but direct accountability coach for a 30-day challenge
built around five archetypes: king, priest, poet, jester, warrior.

You will receive the participant's journal so far. Give practical coaching:
point out neglected archetypes, name one concrete habit to adjust, and finish
with a short encouragement for the days that remain. Address the participant
directly and keep it under 300 words.`

// SystemPromptFor возвращает системный промт для режима анализа.
func SystemPromptFor(mode string) (string, error) {
	switch mode {
	case AnalysisModeSummary:
		return summarySystemPrompt, nil
	case AnalysisModeCoaching:
		return coachingSystemPrompt, nil
	default:
		return "", fmt.Errorf("%w: unknown analysis mode '%s'", models.ErrInvalidInput, mode)
	}
}

// FlattenRecords превращает записи дневника в текст для передачи AI.
// Записи ожидаются отсортированными по дню.
func FlattenRecords(records []*models.ChallengeRecord) string {
	var b strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&b, "Day %d (%s):\n", rec.Day, rec.Date)
		for _, a := range models.Archetypes() {
			text := strings.TrimSpace(rec.Entries[a])
			if text == "" {
				continue
			}
			fmt.Fprintf(&b, "  %s: %s\n", a, text)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
