package models

import (
	"strings"
	"time"
)

// Archetype - одна из пяти фиксированных категорий, по которым пользователь
// ведет ежедневные записи.
type Archetype string

const (
	ArchetypeKing    Archetype = "king"
	ArchetypePriest  Archetype = "priest"
	ArchetypePoet    Archetype = "poet"
	ArchetypeJester  Archetype = "jester"
	ArchetypeWarrior Archetype = "warrior"
)

// Archetypes возвращает все архетипы в фиксированном порядке отображения.
func Archetypes() []Archetype {
	return []Archetype{
		ArchetypeKing,
		ArchetypePriest,
		ArchetypePoet,
		ArchetypeJester,
		ArchetypeWarrior,
	}
}

// IsValid проверяет, что значение принадлежит фиксированному перечислению.
func (a Archetype) IsValid() bool {
	switch a {
	case ArchetypeKing, ArchetypePriest, ArchetypePoet, ArchetypeJester, ArchetypeWarrior:
		return true
	}
	return false
}

// Entries - записи одного дня по всем архетипам. После нормализации содержит
// ровно пять ключей; пустая строка для отдельного ключа допустима.
type Entries map[Archetype]string

// HasContent сообщает, есть ли хотя бы одна непустая запись
// (пробельные строки считаются пустыми).
func (e Entries) HasContent() bool {
	for _, text := range e {
		if strings.TrimSpace(text) != "" {
			return true
		}
	}
	return false
}

// ChallengeRecord - дневная запись журнала одного пользователя.
// Создается ровно один раз (append-only): не редактируется и не удаляется,
// ключ хранения - пара (OwnerID, Day).
type ChallengeRecord struct {
	OwnerID   string    `json:"ownerId" db:"owner_id"`
	Day       int       `json:"day" db:"day"`
	Date      string    `json:"date" db:"date"`
	Entries   Entries   `json:"entries" db:"entries"`
	Timestamp int64     `json:"timestamp" db:"timestamp_ms"`
	CreatedAt time.Time `json:"-" db:"created_at"`
}

// DailyStatusComplete - единственный статус публичной проекции.
const DailyStatusComplete = "complete"

// PublicStatus - публичная проекция факта заполнения дня. Производная от
// ChallengeRecord, самостоятельной ценности не имеет и может быть
// восстановлена из приватных записей в любой момент.
type PublicStatus struct {
	OwnerID   string `json:"ownerId" db:"owner_id"`
	Day       int    `json:"day" db:"day"`
	Date      string `json:"date" db:"date"`
	Status    string `json:"status" db:"status"`
	Timestamp int64  `json:"timestamp" db:"timestamp_ms"`
}

// StatusFromRecord строит публичную проекцию по дневной записи.
func StatusFromRecord(rec *ChallengeRecord) *PublicStatus {
	return &PublicStatus{
		OwnerID:   rec.OwnerID,
		Day:       rec.Day,
		Date:      rec.Date,
		Status:    DailyStatusComplete,
		Timestamp: rec.Timestamp,
	}
}
