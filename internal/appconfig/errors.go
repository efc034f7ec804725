package appconfig

import (
	"fmt"
	"strings"
)

type MissingConfigError struct {
	ConfigName string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("missing %s configuration value", e.ConfigName)
}

// InvalidConfigError reports a set value outside the accepted values.
type InvalidConfigError struct {
	ConfigName string
	Value      string
	Allowed    []string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration value %q, expected one of %s", e.ConfigName, e.Value, strings.Join(e.Allowed, ", "))
}
