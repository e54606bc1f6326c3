// Package main implements a multichecker for this module's code.
//
// Beyond stock analyses, it enforces the central design rule of the
// observability core: library code never terminates the host process.
//
// Usage:
//
//	go run cmd/staticlint/main.go ./...
//	./staticlint ./...
package main

import (
	"golang.org/x/tools/go/analysis/multichecker"

	"github.com/streamsense/observability/cmd/staticlint/analyzers"
)

func main() {
	multichecker.Main(
		analyzers.NoProcessExitAnalyzer,
	)
}
