package ruleconf

// ValidIdentifier reports whether name is a valid node, rule, or
// variable identifier: a non-empty string of letters, digits, and '_'.
func ValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

// operatorAliases canonicalizes the alternate operator type spellings
// recognized as part of the stable configuration contract.
var operatorAliases = map[string]string{
	"equal":             "equals",
	"equals":            "equals",
	"notEqual":          "notEquals",
	"notEquals":         "notEquals",
	"ne":                "notEquals",
	"equalIgnoreCase":   "equalsIgnoreCase",
	"equalsIgnoreCase":  "equalsIgnoreCase",
	"contain":           "contains",
	"contains":          "contains",
	"containIgnoreCase": "containsIgnoreCase",
	"containsIgnoreCase": "containsIgnoreCase",
	"and":               "and",
	"or":                "or",
	"not":               "not",
	"greaterThan":       "greaterThan",
	"gt":                "greaterThan",
	"greaterEq":         "greaterEq",
	"ge":                "greaterEq",
	"lessThan":          "lessThan",
	"lt":                "lessThan",
	"lessEq":            "lessEq",
	"le":                "lessEq",
	"regex":             "regex",
}

// CanonicalOperatorType resolves an operator type alias to its canonical
// form, and reports whether the type is recognized at all.
func CanonicalOperatorType(typ string) (string, bool) {
	canon, ok := operatorAliases[typ]
	return canon, ok
}
