package routestore

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Validate runs structural validation (the `validate` struct tags on
// Route, Upstream, and their nested types) against every route,
// grounded on the teacher's RouteConfigParser.ValidateConfig
// (internal/infrastructure/routing/parser.go): struct-tag validation as
// the first of several layers, run before the predicate/trie layer
// that only exists once a Snapshot is built.
func Validate(routes []*Route) error {
	for _, r := range routes {
		if err := structValidator.Struct(r); err != nil {
			return fmt.Errorf("route %q: %w", r.ID, err)
		}
		if r.Upstream != nil {
			if err := structValidator.Struct(r.Upstream); err != nil {
				return fmt.Errorf("route %q upstream: %w", r.ID, err)
			}
		}
	}
	return nil
}
