package sso

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Registry holds the configured connectors and allows lookup by the name
// segment of the callback URL.  It performs no authentication logic itself.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry registers the given connectors by name.  Connector names must
// be unique and non-empty; all violations are reported together.
func NewRegistry(connectors ...Connector) (*Registry, error) {
	const op = "sso.NewRegistry"
	var result *multierror.Error
	m := make(map[string]Connector, len(connectors))
	for _, c := range connectors {
		switch {
		case c.Name() == "":
			result = multierror.Append(result, fmt.Errorf("%s: connector with empty name", op))
		default:
			if _, ok := m[c.Name()]; ok {
				result = multierror.Append(result, fmt.Errorf("%s: duplicate connector name %q", op, c.Name()))
				continue
			}
			m[c.Name()] = c
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &Registry{connectors: m}, nil
}

// Get returns the connector registered under name, or ErrConnectorNotFound.
func (r *Registry) Get(name string) (Connector, error) {
	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("connector %q: %w", name, ErrConnectorNotFound)
	}
	return c, nil
}
