package countdown

import (
	"fmt"
	"strconv"
	"strings"
)

// Order is the sequence in which ranked positions are played back.
type Order []Position

var (
	// AscendingWrap plays 2,3,4,5 and keeps the winner for last.
	AscendingWrap = Order{2, 3, 4, 5, 1}
	// Descending is a classic countdown, 5 down to 1.
	Descending = Order{5, 4, 3, 2, 1}
)

// Validate checks that o is a permutation of exactly {1..5}.
func (o Order) Validate() error {
	if len(o) != Slots {
		return fmt.Errorf("order must list %d positions, got %d", Slots, len(o))
	}
	var seen [Slots + 1]bool
	for _, p := range o {
		if !p.Valid() {
			return fmt.Errorf("order contains invalid position %d", p)
		}
		if seen[p] {
			return fmt.Errorf("order repeats position %d", p)
		}
		seen[p] = true
	}
	return nil
}

func (o Order) String() string {
	parts := make([]string, len(o))
	for i, p := range o {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, ",")
}

// ParseOrder accepts a preset name or a comma separated list such as "2,3,4,5,1".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ascending-wrap":
		return append(Order(nil), AscendingWrap...), nil
	case "descending":
		return append(Order(nil), Descending...), nil
	}
	var o Order
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid order %q: %w", s, err)
		}
		o = append(o, Position(n))
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}
