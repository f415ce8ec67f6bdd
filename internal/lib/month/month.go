// Package month реализует календарную арифметику для расчёта срока подписки.
//
// time.AddDate нормализует переполнение дней (31 января + 1 месяц = 2/3 марта),
// что для сроков подписки недопустимо: день обрезается до последнего дня
// целевого месяца.
package month

import "time"

// Add прибавляет months календарных месяцев к t.
// Если в целевом месяце меньше дней, день обрезается до последнего
// допустимого (31 января + 1 месяц = 28/29 февраля).
func Add(t time.Time, months int) time.Time {
	totalMonths := int(t.Month()) - 1 + months
	year := t.Year() + totalMonths/12
	m := time.Month(totalMonths%12 + 1)

	day := t.Day()
	if last := lastDay(year, m); day > last {
		day = last
	}
	return time.Date(year, m, day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// ComputeEnd возвращает новую дату окончания подписки: months месяцев
// от currentEnd, если подписка ещё действует, иначе от now.
func ComputeEnd(currentEnd *time.Time, months int, now time.Time) time.Time {
	base := now
	if currentEnd != nil && currentEnd.After(now) {
		base = *currentEnd
	}
	return Add(base, months)
}

func lastDay(year int, m time.Month) int {
	// первый день следующего месяца минус один день
	return time.Date(year, m+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
}
