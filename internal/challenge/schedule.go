package challenge

import (
	"math"
	"time"
)

// DefaultDays - длительность челленджа по умолчанию.
const DefaultDays = 30

// Phase описывает положение текущей даты относительно окна челленджа.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseActive    Phase = "active"
	PhaseCompleted Phase = "completed"
)

// Schedule - фиксированное окно челленджа: дата старта и длительность в днях.
type Schedule struct {
	Start time.Time
	Days  int
}

// NewSchedule создает расписание с нормализованной датой старта (полночь в
// зоне переданного времени) и длительностью days (<=0 заменяется на DefaultDays).
func NewSchedule(start time.Time, days int) Schedule {
	if days <= 0 {
		days = DefaultDays
	}
	return Schedule{Start: truncateToMidnight(start), Days: days}
}

// Day - результат вычисления индекса дня. Raw может выходить за пределы
// [1, Days]; Clamped всегда внутри диапазона. Clamped сам по себе
// неоднозначен ("день 1" неотличим от "еще не началось"), поэтому все
// проверки активности делаются по Raw, а Clamped используется только
// для отображения.
type Day struct {
	Raw     int `json:"raw"`
	Clamped int `json:"clamped"`
}

// DayAt вычисляет индекс дня для момента now: целодневная разница между
// полуночью now и полуночью старта, округление вверх, плюс один - так сама
// дата старта становится днем 1. Now сначала переводится в зону старта:
// обе полуночи должны считаться в одной зоне, иначе разница перестает быть
// целым числом суток и округление сдвигает индекс.
func (s Schedule) DayAt(now time.Time) Day {
	diff := truncateToMidnight(now.In(s.Start.Location())).Sub(truncateToMidnight(s.Start))
	raw := int(math.Ceil(diff.Hours()/24)) + 1

	clamped := raw
	if clamped < 1 {
		clamped = 1
	}
	if clamped > s.Days {
		clamped = s.Days
	}
	return Day{Raw: raw, Clamped: clamped}
}

// PhaseAt возвращает фазу челленджа для момента now (по Raw-значению).
func (s Schedule) PhaseAt(now time.Time) Phase {
	return s.phase(s.DayAt(now))
}

// Active сообщает, идет ли челлендж в момент now.
func (s Schedule) Active(now time.Time) bool {
	return s.PhaseAt(now) == PhaseActive
}

func (s Schedule) phase(d Day) Phase {
	switch {
	case d.Raw < 1:
		return PhasePending
	case d.Raw > s.Days:
		return PhaseCompleted
	default:
		return PhaseActive
	}
}

// truncateToMidnight отбрасывает время суток, сохраняя зону.
func truncateToMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
