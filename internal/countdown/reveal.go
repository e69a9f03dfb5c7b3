package countdown

// RevealSet tracks positions whose names have been shown. It only grows.
type RevealSet struct {
	seen  [Slots + 1]bool
	order []Position
}

func NewRevealSet() *RevealSet {
	return &RevealSet{order: make([]Position, 0, Slots)}
}

// Add marks p as revealed. Adding twice or adding an invalid position is a no-op.
func (r *RevealSet) Add(p Position) {
	if !p.Valid() || r.seen[p] {
		return
	}
	r.seen[p] = true
	r.order = append(r.order, p)
}

func (r *RevealSet) Contains(p Position) bool {
	if r == nil || !p.Valid() {
		return false
	}
	return r.seen[p]
}

func (r *RevealSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Order returns positions in the order they were revealed.
func (r *RevealSet) Order() []Position {
	if r == nil {
		return nil
	}
	return append([]Position(nil), r.order...)
}
