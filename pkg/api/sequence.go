package api

// DeriveSequence computes the ordered list of valid statuses for a program.
//
// The sequence always starts with READY_FOR_BOOKING and ends with COMPLETED.
// Enabled steps contribute their statuses in canonical order; a status
// that appears more than once keeps only its first position.
func DeriveSequence(cfg ProgramStepConfig) []ParticipantStatus {
	seq := make([]ParticipantStatus, 0, len(AllStatuses))
	seen := make(map[ParticipantStatus]bool, len(AllStatuses))

	add := func(s ParticipantStatus) {
		if seen[s] {
			return
		}
		seen[s] = true
		seq = append(seq, s)
	}

	add(StatusReadyForBooking)
	for _, step := range CanonicalSteps {
		if !cfg.Enabled(step) {
			continue
		}
		for _, s := range stepStatuses[step] {
			add(s)
		}
	}
	add(StatusCompleted)

	return seq
}

// IndexOf returns the position of s in seq. found is false when s is not a
// member, which is the case for ON_HOLD and for statuses removed by a
// later configuration change.
func IndexOf(seq []ParticipantStatus, s ParticipantStatus) (idx int, found bool) {
	for i, v := range seq {
		if v == s {
			return i, true
		}
	}
	return -1, false
}

// Contains reports whether s is a member of seq.
func Contains(seq []ParticipantStatus, s ParticipantStatus) bool {
	_, ok := IndexOf(seq, s)
	return ok
}

// NextStatus returns the entry after current in seq.
func NextStatus(seq []ParticipantStatus, current ParticipantStatus) (ParticipantStatus, bool) {
	i, ok := IndexOf(seq, current)
	if !ok || i+1 >= len(seq) {
		return "", false
	}
	return seq[i+1], true
}

// PreviousStatus returns the entry before current in seq.
func PreviousStatus(seq []ParticipantStatus, current ParticipantStatus) (ParticipantStatus, bool) {
	i, ok := IndexOf(seq, current)
	if !ok || i == 0 {
		return "", false
	}
	return seq[i-1], true
}

// IsAdjacent reports whether from and to are immediate neighbours in seq.
func IsAdjacent(seq []ParticipantStatus, from, to ParticipantStatus) bool {
	i, ok := IndexOf(seq, from)
	if !ok {
		return false
	}
	j, ok := IndexOf(seq, to)
	if !ok {
		return false
	}
	d := i - j
	return d == 1 || d == -1
}

// Transitions describes where a participant can go from its current
// position. It backs the "Previous" / "Advance" buttons and the status
// dropdown.
type Transitions struct {
	Current  ParticipantStatus
	OnHold   bool
	Found    bool
	Index    int
	Previous ParticipantStatus
	Next     ParticipantStatus
	Sequence []ParticipantStatus
}

// HasNext reports whether an Advance button should be offered.
func (t Transitions) HasNext() bool { return t.Next != "" }

// HasPrevious reports whether a Previous button should be offered.
func (t Transitions) HasPrevious() bool { return t.Previous != "" }

// TransitionsFor builds the Transitions view for current within seq.
func TransitionsFor(seq []ParticipantStatus, current ParticipantStatus, onHold bool) Transitions {
	t := Transitions{
		Current:  current,
		OnHold:   onHold,
		Sequence: append([]ParticipantStatus(nil), seq...),
	}
	t.Index, t.Found = IndexOf(seq, current)
	// Nothing moves out of COMPLETED.
	if current.IsTerminal() {
		return t
	}
	if next, ok := NextStatus(seq, current); ok {
		t.Next = next
	}
	if prev, ok := PreviousStatus(seq, current); ok {
		t.Previous = prev
	}
	return t
}
