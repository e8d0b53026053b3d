package change

// Breakage classifies what a change can break for consumers of the
// schema.
type Breakage uint8

const (
	// BreakNone is fully compatible.
	BreakNone Breakage = iota
	// BreakCode may break compilation of dependent source.
	BreakCode
	// BreakWire may cause encoded messages to be misread.
	BreakWire
)

func (b Breakage) String() string {
	switch b {
	case BreakNone:
		return "none"
	case BreakCode:
		return "code"
	case BreakWire:
		return "wire"
	}
	return "unknown"
}
