package doselog

// CheckAppend aplica la regla de "una acción efectiva por slot" sobre las
// entradas ya guardadas del mismo slot. Los repositorios la llaman dentro de
// su sección crítica (mutex en memoria, advisory lock en Postgres).
//
//   - slot vacío: se acepta cualquier acción.
//   - última entrada POSTPONED: se acepta (el slot sigue abierto).
//   - última entrada TAKEN/SKIPPED: solo se acepta una corrección que la reemplace.
//   - una corrección que apunta a una entrada que ya no es la última: ErrSlotResolved.
func CheckAppend(slot []Entry, e Entry) error {
	if e.SupersedesID != "" {
		if !containsID(slot, e.SupersedesID) {
			return ErrSupersedeMismatch
		}
	}

	latest, ok := LatestEntry(slot)
	if !ok {
		return nil
	}

	if e.SupersedesID != "" {
		if e.SupersedesID != latest.ID {
			return ErrSlotResolved
		}
		return nil
	}

	if latest.Action.Terminal() {
		return ErrSlotResolved
	}
	return nil
}

// LatestEntry: gana el ActionAt más reciente; empate por ID.
func LatestEntry(entries []Entry) (Entry, bool) {
	var winner Entry
	found := false
	for _, e := range entries {
		if !found ||
			e.ActionAt.After(winner.ActionAt) ||
			(e.ActionAt.Equal(winner.ActionAt) && e.ID > winner.ID) {
			winner = e
			found = true
		}
	}
	return winner, found
}

func containsID(entries []Entry, id string) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}
