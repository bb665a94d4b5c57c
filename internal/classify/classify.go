// Package classify implements NoiseFilter and LevelClassifier (spec.md §4.2):
// deciding whether a line is worth storing, and what log level it is.
package classify

import (
	"regexp"
	"strings"
)

var errorIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\berror\b`),
	regexp.MustCompile(`(?i)\bfatal\b`),
	regexp.MustCompile(`(?i)\bexception\b`),
	regexp.MustCompile(`(?i)\bcrash(?:ed)?\b`),
	regexp.MustCompile(`(?i)\bfailed\b`),
}

var warnIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwarn(?:ing)?\b`),
	regexp.MustCompile(`(?i)\bdeprecated\b`),
}

var debugIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdebug\b`),
	regexp.MustCompile(`(?i)\btrace\b`),
}

var infoIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\binfo\b`),
	regexp.MustCompile(`(?i)\bready\b`),
	regexp.MustCompile(`(?i)\bcompiled\b`),
	regexp.MustCompile(`(?i)\bstarted\b`),
}

// ClassifyLevel returns one of {error, warn, info, debug, output}. Evaluation
// is ordered per spec.md §4.2; empty trimmed text returns "output".
func ClassifyLevel(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "output"
	}
	switch {
	case anyMatch(errorIndicators, trimmed):
		return "error"
	case anyMatch(warnIndicators, trimmed):
		return "warn"
	case anyMatch(debugIndicators, trimmed):
		return "debug"
	case anyMatch(infoIndicators, trimmed):
		return "info"
	default:
		return "output"
	}
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// noiseExclusions are regexes whose match means the line is NOT storable.
var noiseExclusions = []*regexp.Regexp{
	// Lines consisting only of whitespace, digits, brackets, colons, periods.
	regexp.MustCompile(`^[\s\d\[\]{}():.]*$`),
	// Bundler hot-update / reload / connection chatter.
	regexp.MustCompile(`(?i)\[(?:vite|webpack|hmr)\]\s*(?:hmr update|page reload|connected|connecting)`),
	regexp.MustCompile(`(?i)hmr update /`),
	// Compile-success / no-issues notices.
	regexp.MustCompile(`(?i)\b(?:compiled successfully|no issues found|build succeeded)\b`),
	regexp.MustCompile(`(?i)\bready in \d+\s*m?s\b`),
	// Build-system bookkeeping.
	regexp.MustCompile(`(?i)^\s*(?:\[\d+/\d+\]|webpack \d|watching for file changes)`),
	// HTTP access-log lines: "--> GET /path 200".
	regexp.MustCompile(`(?i)-->\s+\S+\s+/\S*\s+\d{3}\b`),
	// Self-monitoring chatter.
	regexp.MustCompile(`(?i)\b(?:process unresponsive|healthcheck|monitoring)\b`),
}

// IsStorable reports whether a line should be persisted to RollingLog/LineBuffer.
func IsStorable(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}
	for _, re := range noiseExclusions {
		if re.MatchString(trimmed) {
			return false
		}
	}
	return true
}

// looksLikeErrorTokens gates the fallback detection path (spec.md §4.2).
var looksLikeErrorTokens = []string{
	"error:", "fatal:", "uncaught exception", "unhandled promise",
	"syntax error", "reference error", "type error", "module not found",
	"failed to compile", "build failed", "compilation failed",
	"econnrefused", "eaddrinuse", "transform failed", "crash:", "abort:",
}

// LooksLikeError is a stricter, case-insensitive predicate checked against an
// explicit token list.
func LooksLikeError(content string) bool {
	lower := strings.ToLower(content)
	for _, tok := range looksLikeErrorTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
