package sso

import "errors"

var (
	ErrConnectorNotFound = errors.New("connector not found")
	ErrNoSession         = errors.New("no browser session")
)
