package domain

import "regexp"

// Category classifies the nature of a detected error.
type Category string

const (
	CategoryRuntime     Category = "runtime"
	CategoryCompilation Category = "compilation"
	CategorySyntax      Category = "syntax"
	CategoryDependency  Category = "dependency"
	CategoryMemory      Category = "memory"
	CategoryNetwork     Category = "network"
	CategoryEnvironment Category = "environment"
	CategoryFilesystem  Category = "filesystem"
	CategoryBuild       Category = "build"
)

// Severity ranks how serious a detected error is.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Extractor maps named fields to regexp capture-group indices.
type Extractor struct {
	Message int // 0 means "not set" (no named group is allowed at index 0)
	File    int
	Line    int
	Column  int
}

// HasMessage reports whether the extractor defines a capture group for message.
func (e Extractor) HasMessage() bool { return e.Message > 0 }

// Rule is an immutable, catalogue-wide error-matching rule.
type Rule struct {
	ID          string
	Category    Category
	Severity    Severity
	Priority    int // higher is tried first
	Pattern     *regexp.Regexp
	Extractor   Extractor
	Description string
}
