// Package pattern holds the read-only, priority-sorted catalogue of error
// matching rules consumed by the detector. Rules are modeled as plain data
// (domain.Rule) so they can be loaded, sorted, and unit-tested independently
// of the matching logic itself.
package pattern

import (
	"regexp"
	"sort"

	"github.com/vedranburojevic/devsupervisor/internal/domain"
)

// Catalogue is a priority-sorted, immutable vector of rules.
type Catalogue struct {
	rules []domain.Rule
}

// New builds the catalogue and sorts it descending by priority, ties
// resolved in insertion order (sort.SliceStable).
func New(rules []domain.Rule) *Catalogue {
	c := &Catalogue{rules: append([]domain.Rule(nil), rules...)}
	sort.SliceStable(c.rules, func(i, j int) bool {
		return c.rules[i].Priority > c.rules[j].Priority
	})
	return c
}

// Rules returns the sorted rule vector. Callers must not mutate it.
func (c *Catalogue) Rules() []domain.Rule { return c.rules }

func re(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}

// Default builds the normative catalogue described in spec.md §4.1. IDs are
// normative so tests can pin them.
func Default() *Catalogue {
	return New([]domain.Rule{
		{
			ID: "out_of_memory", Category: domain.CategoryMemory, Severity: domain.SeverityFatal, Priority: 101,
			Pattern: re(`(?i)(heap limit|out of memory|\boom\b|stack overflow|allocation failed)`),
		},
		{
			ID: "fatal_generic", Category: domain.CategoryRuntime, Severity: domain.SeverityFatal, Priority: 100,
			Pattern:   re(`(?i)FATAL ERROR:\s*(.+)`),
			Extractor: domain.Extractor{Message: 1},
		},
		{
			ID: "uncaught_exception", Category: domain.CategoryRuntime, Severity: domain.SeverityFatal, Priority: 95,
			Pattern:   re(`(?i)Uncaught Exception:\s*(.+)`),
			Extractor: domain.Extractor{Message: 1},
		},
		{
			ID: "bundler_error_with_location", Category: domain.CategoryCompilation, Severity: domain.SeverityError, Priority: 95,
			Pattern:   re(`(?i)\[(?:vite|webpack|esbuild|rollup|turbopack)\][^\n]*?:\s*(.+?)\n\s+at\s+([^\s()]+):(\d+):(\d+)`),
			Extractor: domain.Extractor{Message: 1, File: 2, Line: 3, Column: 4},
		},
		{
			ID: "bundler_transform_failed", Category: domain.CategoryCompilation, Severity: domain.SeverityError, Priority: 90,
			Pattern: re(`(?i)Transform failed with (\d+) errors?`),
		},
		{
			ID: "hmr_update_failed", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 85,
			Pattern:   re(`(?i)\[hmr\][^\n]*?(?:critical|failed)[^\n]*?([^\s]+\.(?:js|jsx|ts|tsx|vue|svelte)):?\s*(.*)`),
			Extractor: domain.Extractor{File: 1, Message: 2},
		},
		{
			ID: "component_runtime_error", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 90,
			Pattern:   re(`(?i)(?:component|render) error in ([^\s:]+):\s*(.+)`),
			Extractor: domain.Extractor{File: 1, Message: 2},
		},
		{
			ID: "hydration_mismatch", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 90,
			Pattern: re(`(?i)hydration (?:failed|mismatch|error)`),
		},
		{
			ID: "hook_misuse", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 85,
			Pattern: re(`(?i)(?:invalid hook call|hooks can only be called|rendered more hooks)`),
		},
		{
			ID: "framework_build_failed", Category: domain.CategoryCompilation, Severity: domain.SeverityError, Priority: 90,
			Pattern: re(`(?i)(?:build failed|failed to compile)\b`),
		},
		{
			ID: "server_side_runtime", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 85,
			Pattern: re(`(?i)server[\s-]side (?:exception|error)`),
		},
		{
			ID: "js_error_with_stack", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 90,
			Pattern:   re(`(?m)^(\w*Error):\s*(.+)\n\s+at\s+[^\n]*?([^\s()]+):(\d+):(\d+)`),
			Extractor: domain.Extractor{Message: 2, File: 3, Line: 4, Column: 5},
		},
		{
			ID: "syntax_error_with_location", Category: domain.CategoryCompilation, Severity: domain.SeverityError, Priority: 90,
			Pattern:   re(`(?i)SyntaxError:\s*(.+?)\s*\(?([^\s():]+):(\d+):(\d+)\)?`),
			Extractor: domain.Extractor{Message: 1, File: 2, Line: 3, Column: 4},
		},
		{
			ID: "ts_compile_error", Category: domain.CategoryCompilation, Severity: domain.SeverityError, Priority: 85,
			Pattern:   re(`([^\s():]+)\((\d+),(\d+)\):\s*error (TS\d+):\s*(.+)`),
			Extractor: domain.Extractor{File: 1, Line: 2, Column: 3, Message: 5},
		},
		{
			ID: "lint_error", Category: domain.CategoryCompilation, Severity: domain.SeverityWarning, Priority: 75,
			Pattern:   re(`([^\s():]+):(\d+):(\d+):\s*(error|warning)\s*-?\s*(.+)`),
			Extractor: domain.Extractor{File: 1, Line: 2, Column: 3, Message: 5},
		},
		{
			ID: "uncaught_error", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 88,
			Pattern:   re(`(?i)Uncaught\s+(\w*Error):\s*(.+)`),
			Extractor: domain.Extractor{Message: 2},
		},
		{
			ID: "unhandled_rejection", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 85,
			Pattern:   re(`(?i)UnhandledPromiseRejection(?:Warning)?:?\s*(.+)`),
			Extractor: domain.Extractor{Message: 1},
		},
		{
			ID: "client_error_json", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 80,
			Pattern: re(`(?s)__CLIENT_ERROR__\s*(\{.*)`),
			// Extractor left empty; handled specially in the detector (spec.md §4.3).
		},
		{
			ID: "module_not_found", Category: domain.CategoryDependency, Severity: domain.SeverityError, Priority: 75,
			Pattern:   re(`(?i)(?:Error:\s*)?Cannot find module\s*'?([^'\s]+)'?`),
			Extractor: domain.Extractor{Message: 0, File: 1},
		},
		{
			ID: "import_resolve_failed", Category: domain.CategoryDependency, Severity: domain.SeverityError, Priority: 72,
			Pattern: re(`(?i)(?:failed to resolve import|could not resolve)\s*"?([^"\s]+)"?`),
		},
		{
			ID: "package_manifest_error", Category: domain.CategoryDependency, Severity: domain.SeverityError, Priority: 70,
			Pattern: re(`(?i)(?:invalid|malformed) package\.json`),
		},
		{
			ID: "port_in_use", Category: domain.CategoryEnvironment, Severity: domain.SeverityError, Priority: 90,
			Pattern: re(`(?i)(?:EADDRINUSE|address already in use|port\s+\d+\s+is\s+(?:already\s+)?in use)`),
		},
		{
			ID: "network_generic", Category: domain.CategoryNetwork, Severity: domain.SeverityError, Priority: 70,
			Pattern: re(`(?i)(ECONNREFUSED|ENOTFOUND|ETIMEDOUT|fetch failed)`),
		},
		{
			ID: "console_error_generic", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 40,
			Pattern:   re(`(?i)console\.error:?\s*(.+)`),
			Extractor: domain.Extractor{Message: 1},
		},
		{
			ID: "exception_generic", Category: domain.CategoryRuntime, Severity: domain.SeverityError, Priority: 35,
			Pattern:   re(`(?i)exception:?\s*(.+)`),
			Extractor: domain.Extractor{Message: 1},
		},
	})
}
