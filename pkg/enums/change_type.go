package enums

import "fmt"

// ChangeType distinguishes proposals for a brand-new vehicle from edits to
// an existing one.
type ChangeType string

const (
	ChangeTypeNew    ChangeType = "new"
	ChangeTypeUpdate ChangeType = "update"
)

var validChangeTypes = []ChangeType{
	ChangeTypeNew,
	ChangeTypeUpdate,
}

// String implements fmt.Stringer.
func (c ChangeType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ChangeType.
func (c ChangeType) IsValid() bool {
	for _, candidate := range validChangeTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseChangeType converts raw input into a ChangeType.
func ParseChangeType(value string) (ChangeType, error) {
	for _, candidate := range validChangeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid change type %q", value)
}
