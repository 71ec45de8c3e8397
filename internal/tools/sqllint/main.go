package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// A statement starts with a DML keyword, optionally after its marker line.
	sqlMarkerPattern  = regexp.MustCompile(`(?i)^\s*(--[^\n]*\n\s*)?(select|insert|update|delete|with)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	violations, err := lintTargets(targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "sqllint: SQL audit marker violations")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "  %s:%d %s (%s)\n", v.file, v.line, v.message, v.name)
		}
		os.Exit(1)
	}
}

// lintTargets checks every Go file below targets. Markers must be present and
// unique across the whole run, since logs identify statements by marker only.
func lintTargets(targets []string) ([]violation, error) {
	var (
		violations []violation
		seen       = map[string]violation{}
	)
	check := func(path string) error {
		vs, markers, err := lintFile(path)
		if err != nil {
			return err
		}
		violations = append(violations, vs...)
		for _, m := range markers {
			if first, ok := seen[m.message]; ok {
				violations = append(violations, violation{
					file:    m.file,
					line:    m.line,
					name:    m.name,
					message: fmt.Sprintf("duplicate marker %q, first used by %s at %s:%d", m.message, first.name, first.file, first.line),
				})
				continue
			}
			seen[m.message] = m
		}
		return nil
	}

	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if filepath.Ext(target) == ".go" {
				if err := check(target); err != nil {
					return nil, err
				}
			}
			continue
		}
		walkErr := filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != target && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_")) ||
					d.Name() == "vendor" || d.Name() == "node_modules" {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			return check(path)
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}
	return violations, nil
}

// lintFile returns marker violations in path plus every valid marker found,
// carried in violation.message for the uniqueness pass.
func lintFile(path string) ([]violation, []violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, nil, err
	}
	var violations, markers []violation
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil {
				continue
			}
			if !sqlMarkerPattern.MatchString(raw) {
				continue
			}
			marker := firstLine(raw)
			v := violation{
				file: path,
				line: fset.Position(bl.Pos()).Line,
				name: joinNames(vs.Names),
			}
			if !uuidMarkerPattern.MatchString(marker) {
				v.message = "missing or invalid --sql <uuid> marker"
				violations = append(violations, v)
				continue
			}
			v.message = marker
			markers = append(markers, v)
		}
		return true
	})
	return violations, markers, nil
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func joinNames(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}
