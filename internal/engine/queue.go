package engine

// Queue holds pending actions in two tiers. Table creations always drain
// before everything else so a field or index never targets a table that
// does not exist yet, whatever order the definitions were written in.
type Queue struct {
	creates []Action
	rest    []Action
}

// Push appends a to its tier.
func (q *Queue) Push(actions ...Action) {
	for _, a := range actions {
		if a.Kind() == KindCreateTable {
			q.creates = append(q.creates, a)
			continue
		}
		q.rest = append(q.rest, a)
	}
}

func (q *Queue) Len() int { return len(q.creates) + len(q.rest) }

// Actions returns the drain order: creations, then the rest, each in
// insertion order.
func (q *Queue) Actions() []Action {
	out := make([]Action, 0, q.Len())
	out = append(out, q.creates...)
	return append(out, q.rest...)
}
