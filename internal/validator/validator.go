// Package validator guards component constructors against missing
// dependencies.
package validator

import (
	"fmt"
	"reflect"
)

// Validate returns an error when any dependency is nil or zero-valued.
func Validate(component string, deps ...any) error {
	for _, dep := range deps {
		if v := reflect.ValueOf(dep); !v.IsValid() || v.IsZero() {
			return fmt.Errorf("missing required dependency for component %s", component)
		}
	}

	return nil
}
