package core

import (
	"fmt"
	"strings"
)

// Environment represents the deployment environment the generator runs in.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// String returns the string representation of the environment.
func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether the environment corresponds to production.
// Production runs log JSON at info level; every other environment uses the
// human readable console writer.
func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment normalises v into one of the known environments. An empty
// value selects Development; anything else unknown is rejected so a typo in
// ENVIRONMENT does not silently switch log formats on a long batch run.
func ParseEnvironment(v string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(v))) {
	case "", Development:
		return Development, nil
	case Testing:
		return Testing, nil
	case Production:
		return Production, nil
	default:
		return "", fmt.Errorf("unknown environment %q (want development, testing or production)", v)
	}
}
