package vhost

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrInvalidConfig marks every configuration error so callers can test with errors.Is.
var ErrInvalidConfig = errors.New("invalid virtual host configuration")

// ConfigurationError is returned when a domain entry cannot be turned into a [Domain].
type ConfigurationError struct {
	Domain string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Domain == "":
		return fmt.Sprintf("vhost: %s", e.Reason)
	case e.Field == "":
		return fmt.Sprintf("vhost: domain %q: %s", e.Domain, e.Reason)
	default:
		return fmt.Sprintf("vhost: domain %q: field %q: %s", e.Domain, e.Field, e.Reason)
	}
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidConfig }

func configErr(domain, field, reason string) error {
	return errors.WithStack(&ConfigurationError{Domain: domain, Field: field, Reason: reason})
}
