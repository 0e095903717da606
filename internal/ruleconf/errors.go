package ruleconf

import "fmt"

// ConfigurationError reports a fatal, compile-time problem with a
// processing tree configuration: a malformed node, invalid identifier,
// unknown operator tag, regex compile failure, or duplicate name. It
// always carries the path to the offending node/rule.
type ConfigurationError struct {
	Path   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// ErrAt builds a ConfigurationError for path.
func ErrAt(path, format string, args ...any) error {
	return &ConfigurationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// ErrRequired reports a missing required field.
func ErrRequired(path, field string) error {
	return ErrAt(path, "%s is required", field)
}

// ErrInvalidIdentifier reports a name that fails the identifier grammar.
func ErrInvalidIdentifier(path, name string) error {
	return ErrAt(path, "invalid identifier %q: must be non-empty and contain only letters, digits, and '_'", name)
}

// ErrDuplicateName reports two siblings (or two rules in one rule set)
// sharing a name.
func ErrDuplicateName(path, name string) error {
	return ErrAt(path, "duplicate name %q among siblings", name)
}

// ErrUnknownOperatorType reports an operator config with an unrecognized
// (and non-aliased) type tag.
func ErrUnknownOperatorType(path, typ string) error {
	return ErrAt(path, "unknown operator type %q", typ)
}
