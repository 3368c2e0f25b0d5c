package order

import "fmt"

// InvalidMode names one corruption applied to an otherwise valid order.
// The tag rides along in the payload for downstream observability; nothing
// in the pipeline interprets it.
type InvalidMode string

const (
	// ModeRandom picks one of the concrete modes uniformly per event.
	ModeRandom InvalidMode = "random"

	MissingUnitPrice     InvalidMode = "missing_unit_price"
	MissingQuantity      InvalidMode = "missing_quantity"
	MissingBoth          InvalidMode = "missing_both"
	NonPositiveUnitPrice InvalidMode = "non_positive_unit_price"
	NonPositiveQuantity  InvalidMode = "non_positive_quantity"
)

// InvalidModes lists the concrete corruption strategies, i.e. every valid
// --invalid-mode value except random.
var InvalidModes = []InvalidMode{
	MissingUnitPrice,
	MissingQuantity,
	MissingBoth,
	NonPositiveUnitPrice,
	NonPositiveQuantity,
}

// ParseInvalidMode validates a CLI-supplied mode name.
func ParseInvalidMode(s string) (InvalidMode, error) {
	m := InvalidMode(s)
	if m == ModeRandom {
		return m, nil
	}
	for _, known := range InvalidModes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown invalid mode %q", s)
}

// InvalidOrder builds a valid order and then corrupts it. The returned record
// is in wire-map form because the corruption may remove fields entirely.
// The second return value is the concrete mode that was applied.
func (g *Generator) InvalidOrder(mode InvalidMode) (Record, InvalidMode) {
	o := g.Order()

	selected := mode
	if mode == ModeRandom {
		selected = InvalidModes[g.rng.Intn(len(InvalidModes))]
	}

	rec := o.record()
	switch selected {
	case MissingUnitPrice:
		delete(rec, "unit_price")
	case MissingQuantity:
		delete(rec, "quantity")
	case MissingBoth:
		delete(rec, "unit_price")
		delete(rec, "quantity")
	case NonPositiveUnitPrice:
		rec["unit_price"] = 0.0
	case NonPositiveQuantity:
		rec["quantity"] = 0
	}
	rec["invalid_mode"] = string(selected)

	return rec, selected
}
