// Package analyzers contains custom analyzers for static analysis.
package analyzers

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
)

// NoProcessExitAnalyzer disallows calls to os.Exit and log.Fatal variants
// outside the main package.
//
// The observability core is embedded in a latency-critical host process; no
// library code of this module may ever terminate that process. Exits are
// allowed only in package main, where startup failures are handled.
var NoProcessExitAnalyzer = &analysis.Analyzer{
	Name: "noprocessexit",
	Doc:  "disallow os.Exit and log.Fatal* outside the main package",
	Run:  run,
}

// forbidden maps package path to the call names that terminate the process.
var forbidden = map[string]map[string]bool{
	"os":  {"Exit": true},
	"log": {"Fatal": true, "Fatalf": true, "Fatalln": true},
}

func run(pass *analysis.Pass) (interface{}, error) {
	if pass.Pkg.Name() == "main" {
		return nil, nil
	}

	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			callExpr, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}

			selectorExpr, ok := callExpr.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}

			ident, ok := selectorExpr.X.(*ast.Ident)
			if !ok {
				return true
			}

			obj := pass.TypesInfo.Uses[ident]
			if obj == nil {
				return true
			}
			pkgName, ok := obj.(*types.PkgName)
			if !ok {
				return true
			}

			if names, ok := forbidden[pkgName.Imported().Path()]; ok && names[selectorExpr.Sel.Name] {
				pass.Reportf(callExpr.Pos(), "call to %s.%s outside package main is forbidden",
					pkgName.Imported().Path(), selectorExpr.Sel.Name)
			}
			return true
		})
	}
	return nil, nil
}
