package persistence

// Persistence bundles the store interfaces so the engine
// can depend on a single abstraction.
type Persistence struct {
	Programs     ProgramStore
	Participants ParticipantStore
}

// Store is implemented by every backend that keeps both programs and
// participants.
type Store interface {
	ProgramStore
	ParticipantStore
}

// New returns a Persistence that uses s for both programs and participants.
func New(s Store) Persistence {
	return Persistence{Programs: s, Participants: s}
}
