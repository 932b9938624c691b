package registry

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Family identifies one of the supported CSS preprocessor toolchains.
type Family string

const (
	FamilySASS   Family = "sass"
	FamilyLESS   Family = "less"
	FamilyStylus Family = "stylus"
)

// MergePrecedence is the order in which a variant's intermediate artifacts
// are concatenated. Later families win under the normal cascade.
var MergePrecedence = []Family{FamilyStylus, FamilyLESS, FamilySASS}

// SupportedFamilies returns the families in their default discovery order.
func SupportedFamilies() []Family {
	return []Family{FamilySASS, FamilyLESS, FamilyStylus}
}

var upper = cases.Upper(language.Und)

// Valid reports whether f is one of the supported families.
func (f Family) Valid() bool {
	switch f {
	case FamilySASS, FamilyLESS, FamilyStylus:
		return true
	default:
		return false
	}
}

// String returns the family identifier.
func (f Family) String() string {
	return string(f)
}

// DisplayName is the label used in log lines ("SASS", "LESS", "STYLUS").
func (f Family) DisplayName() string {
	return upper.String(string(f))
}

// ParseFamily converts a configured family name into a Family.
func ParseFamily(s string) (Family, error) {
	f := Family(s)
	if !f.Valid() {
		return "", fmt.Errorf("schema [%s] is not supported", s)
	}
	return f, nil
}

// ParseFamilies converts a configured family list, keeping its order.
func ParseFamilies(names []string) ([]Family, error) {
	families := make([]Family, 0, len(names))
	for _, name := range names {
		f, err := ParseFamily(name)
		if err != nil {
			return nil, err
		}
		families = append(families, f)
	}
	return families, nil
}
