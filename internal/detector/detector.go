// Package detector implements ErrorDetector (spec.md §4.3, C3): ordered
// pattern matching against the catalogue, structured field extraction,
// fallback heuristic inference for unmatched stderr, category inference,
// and message/path cleanup. Grounded on the teacher's
// internal/output.Analyzer (precompiled package-level regexes, small
// focused helper methods) generalized from log-summarization to
// single-chunk detection, and on the teacher's internal/filter predicates
// for the shape of "does this look like X" gating logic.
package detector

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/vedranburojevic/devsupervisor/internal/domain"
	"github.com/vedranburojevic/devsupervisor/internal/pattern"
)

// Detector matches chunks of child output against a Catalogue.
type Detector struct {
	catalogue *pattern.Catalogue
}

// New creates a Detector bound to the given catalogue.
func New(catalogue *pattern.Catalogue) *Detector {
	return &Detector{catalogue: catalogue}
}

// Detect runs the algorithm of spec.md §4.3 against chunk, returning the
// detected error and true, or (nil, false) when nothing was detected. This
// explicit boolean closes spec.md §9's first open question: no sentinel
// "null" DetectedError is ever returned.
func (d *Detector) Detect(chunk string, ctx map[string]any) (*domain.DetectedError, bool) {
	if ctx == nil {
		ctx = map[string]any{}
	}

	for _, rule := range d.catalogue.Rules() {
		m := rule.Pattern.FindStringSubmatch(chunk)
		if m == nil {
			continue
		}
		return d.buildFromRule(rule, m, chunk, ctx), true
	}

	stream, _ := ctx["stream"].(string)
	if stream == string(domain.StreamStderr) && strings.TrimSpace(chunk) != "" {
		return d.fallback(chunk, ctx)
	}
	return nil, false
}

func (d *Detector) buildFromRule(rule domain.Rule, m []string, chunk string, ctx map[string]any) *domain.DetectedError {
	e := &domain.DetectedError{
		Category:  rule.Category,
		Severity:  rule.Severity,
		PatternID: rule.ID,
		RawOutput: chunk,
		Context:   cloneContext(ctx),
	}

	switch rule.ID {
	case "client_error_json":
		d.applyClientErrorJSON(e, m, chunk)
	case "lint_error":
		d.applyLintSeverity(e, m)
		applyExtractor(e, rule.Extractor, m)
	default:
		applyExtractor(e, rule.Extractor, m)
	}

	if e.Message == "" {
		e.Message = strings.TrimSpace(m[0])
	}

	e.SourceFile = normalizeSourceFile(e.SourceFile)
	if st := extractStackTrace(chunk); st != "" {
		e.StackTrace = st
	}
	e.Message = cleanMessage(e.Message)
	e.Truncate()
	return e
}

func applyExtractor(e *domain.DetectedError, ex domain.Extractor, m []string) {
	if ex.HasMessage() && ex.Message < len(m) {
		e.Message = strings.TrimSpace(m[ex.Message])
	}
	if ex.File > 0 && ex.File < len(m) {
		e.SourceFile = strings.TrimSpace(m[ex.File])
	}
	if ex.Line > 0 && ex.Line < len(m) {
		if n, err := strconv.Atoi(m[ex.Line]); err == nil {
			e.LineNumber = n
		}
	}
	if ex.Column > 0 && ex.Column < len(m) {
		if n, err := strconv.Atoi(m[ex.Column]); err == nil {
			e.ColumnNumber = n
		}
	}
}

func (d *Detector) applyLintSeverity(e *domain.DetectedError, m []string) {
	// capture group 4 per the catalogue's lint_error extractor.
	if len(m) > 4 && strings.EqualFold(strings.TrimSpace(m[4]), "error") {
		e.Severity = domain.SeverityError
	} else {
		e.Severity = domain.SeverityWarning
	}
}

// clientErrorEnvelope mirrors the subset of fields a browser-side error
// reporter embeds as JSON (spec.md §4.3).
type clientErrorEnvelope struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
	Source  string `json:"source"`
	URL     string `json:"url"`
	Lineno  any    `json:"lineno"`
	Colno   any    `json:"colno"`
}

var (
	trailingCommaBrace = regexp.MustCompile(`,\s*}`)
	singleQuotedKey    = regexp.MustCompile(`'([^'\\]*)'\s*:`)
	singleQuotedValue  = regexp.MustCompile(`:\s*'([^'\\]*)'`)
	scavengeMessage    = regexp.MustCompile(`(?i)message['":\s]*['"]([^'"]+)['"]`)
	scavengeErrorType  = regexp.MustCompile(`(?:Reference|Type|Syntax|)Error:\s*(.+)`)
)

func (d *Detector) applyClientErrorJSON(e *domain.DetectedError, m []string, chunk string) {
	e.Context["originalJson"] = chunk
	e.Context["source"] = "CLIENT_ERROR"

	raw := chunk
	if len(m) > 1 {
		raw = m[1]
	}
	cleaned := cleanJSONEnvelope(raw)

	if gjson.Valid(cleaned) {
		env := clientErrorEnvelope{
			Message: gjson.Get(cleaned, "message").String(),
			Stack:   gjson.Get(cleaned, "stack").String(),
			Lineno:  gjson.Get(cleaned, "lineno").Value(),
			Colno:   gjson.Get(cleaned, "colno").Value(),
		}
		if s := gjson.Get(cleaned, "source"); s.Exists() {
			env.Source = s.String()
		} else {
			env.Source = gjson.Get(cleaned, "url").String()
		}
		applyClientEnvelope(e, env)
		return
	}

	var env clientErrorEnvelope
	if err := json.Unmarshal([]byte(cleaned), &env); err == nil {
		if env.Source == "" {
			env.Source = env.URL
		}
		applyClientEnvelope(e, env)
		return
	}

	if mm := scavengeMessage.FindStringSubmatch(cleaned); mm != nil {
		e.Message = mm[1]
		return
	}
	if mm := scavengeErrorType.FindStringSubmatch(cleaned); mm != nil {
		e.Message = strings.TrimSpace(mm[1])
		return
	}
	e.Message = "Client error (malformed data)"
}

func applyClientEnvelope(e *domain.DetectedError, env clientErrorEnvelope) {
	e.Message = env.Message
	if env.Stack != "" {
		e.StackTrace = env.Stack
	}
	if env.Source != "" {
		e.SourceFile = env.Source
	}
	if n := toInt(env.Lineno); n > 0 {
		e.LineNumber = n
	}
	if n := toInt(env.Colno); n > 0 {
		e.ColumnNumber = n
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

// cleanJSONEnvelope applies the lenient repairs of spec.md §4.3: strip a
// trailing incomplete suffix beyond the last '}', normalize ", }" -> "}",
// normalize single-quoted keys/values to double-quoted, and escape raw
// control characters.
func cleanJSONEnvelope(s string) string {
	if idx := strings.LastIndex(s, "}"); idx >= 0 {
		s = s[:idx+1]
	}
	s = trailingCommaBrace.ReplaceAllString(s, "}")
	s = singleQuotedKey.ReplaceAllString(s, `"$1":`)
	s = singleQuotedValue.ReplaceAllString(s, `:"$1"`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	// Escaping bare newlines must skip ones already part of \r / \n escapes
	// we just inserted; since those use backslash-r/backslash-t (not raw
	// \n), a straight replace is safe here.
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

var stackFrameLine = regexp.MustCompile(`(?m)^\s+(?:at|in) .+$`)

func extractStackTrace(chunk string) string {
	matches := stackFrameLine.FindAllString(chunk, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.Join(matches, "\n")
}

var (
	srcPrefix       = regexp.MustCompile(`^.*?(?:/src/|/pages/|/components/|/lib/|/utils/|/app/)`)
	schemeURIPrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://[^/]*`)
	nodeModulesPath = regexp.MustCompile(`^.*?(node_modules/.*)$`)
)

// normalizeSourceFile strips common absolute prefixes per spec.md §4.3 step 3.
func normalizeSourceFile(file string) string {
	if file == "" {
		return ""
	}
	file = strings.TrimPrefix(file, "file://")
	if m := nodeModulesPath.FindStringSubmatch(file); m != nil {
		return m[1]
	}
	if srcPrefix.MatchString(file) {
		return srcPrefix.ReplaceAllString(file, "")
	}
	if schemeURIPrefix.MatchString(file) {
		return schemeURIPrefix.ReplaceAllString(file, "")
	}
	return file
}

var (
	bracketPrefix = regexp.MustCompile(`^\s*\[[^\]]*\]\s*`)
	isoDatePrefix = regexp.MustCompile(`^\s*\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?\s*`)
	levelPrefix   = regexp.MustCompile(`(?i)^\s*(?:ERROR|WARN|INFO|DEBUG):\s*`)
	atPrefix      = regexp.MustCompile(`^\s*at\s+`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// cleanMessage applies spec.md §4.3 step 6.
func cleanMessage(msg string) string {
	for {
		switch {
		case bracketPrefix.MatchString(msg):
			msg = bracketPrefix.ReplaceAllString(msg, "")
		case isoDatePrefix.MatchString(msg):
			msg = isoDatePrefix.ReplaceAllString(msg, "")
		case levelPrefix.MatchString(msg):
			msg = levelPrefix.ReplaceAllString(msg, "")
		case atPrefix.MatchString(msg):
			msg = atPrefix.ReplaceAllString(msg, "")
		default:
			return strings.TrimSpace(whitespaceRun.ReplaceAllString(msg, " "))
		}
	}
}

func cloneContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx)+1)
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
