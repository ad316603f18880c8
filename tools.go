//go:build tools
// +build tools

// Package tools pins mockgen, which the go:generate lines of the mocks run.
package messenger

import (
	_ "go.uber.org/mock/mockgen"
)
