package schedule

import "time"

// weeklyScanDays: hoy + los 7 días siguientes (inclusive).
const weeklyScanDays = 7

// NextTrigger devuelve el primer instante estrictamente posterior a now en que
// dispara la regla, en UTC. ok=false si la regla no puede producir ninguno
// (HOURLY sin intervalo, WEEKLY sin días, frecuencia desconocida).
//
// No revisa rule.Active: quien llama filtra reglas inactivas antes.
func NextTrigger(rule Rule, now time.Time) (time.Time, bool) {
	now = now.UTC()

	switch rule.Kind {
	case FrequencyDaily:
		return nextDaily(rule.TimeOfDay, now), true
	case FrequencyHourly:
		return nextHourly(rule.TimeOfDay, rule.IntervalHours, now)
	case FrequencyWeekly:
		return nextWeekly(rule.TimeOfDay, rule.DaysOfWeek, now)
	default:
		return time.Time{}, false
	}
}

// ResolveNextTrigger es el nombre de la operación expuesta a los hosts.
func ResolveNextTrigger(rule Rule, nowUTC time.Time) (time.Time, bool) {
	return NextTrigger(rule, nowUTC)
}

func nextDaily(tod TimeOfDay, now time.Time) time.Time {
	t := tod.On(now)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// nextHourly: arranca en tod de hoy y suma intervalos hasta pasar now.
// Como el ancla es de hoy, el loop hace a lo sumo 24/interval+1 vueltas.
func nextHourly(tod TimeOfDay, intervalHours int, now time.Time) (time.Time, bool) {
	if intervalHours < 1 {
		return time.Time{}, false
	}
	step := time.Duration(intervalHours) * time.Hour

	t := tod.On(now)
	for !t.After(now) {
		t = t.Add(step)
	}
	return t, true
}

func nextWeekly(tod TimeOfDay, days []int, now time.Time) (time.Time, bool) {
	if len(days) == 0 {
		return time.Time{}, false
	}

	var set [7]bool
	hasDay := false
	for _, d := range days {
		if d >= 0 && d <= 6 {
			set[d] = true
			hasDay = true
		}
	}
	if !hasDay {
		return time.Time{}, false
	}

	today := tod.On(now)
	for i := 0; i <= weeklyScanDays; i++ {
		t := today.AddDate(0, 0, i)
		if set[int(t.Weekday())] && t.After(now) {
			return t, true
		}
	}
	return time.Time{}, false
}
