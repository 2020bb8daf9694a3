package market

// Tristate is a boolean that can also be unknown. Indicator-derived flags use
// it so "insufficient data" is never conflated with "not confirmed".
type Tristate int

const (
	Unknown Tristate = iota
	False
	True
)

// TristateOf converts a known boolean into a Tristate.
func TristateOf(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// IsTrue reports whether the value is known and true.
func (t Tristate) IsTrue() bool { return t == True }

// IsFalse reports whether the value is known and false.
func (t Tristate) IsFalse() bool { return t == False }

// IsUnknown reports whether the value is unknown.
func (t Tristate) IsUnknown() bool { return t == Unknown }

// MarshalJSON renders the value as its name, not its ordinal.
func (t Tristate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}
