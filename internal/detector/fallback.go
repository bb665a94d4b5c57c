package detector

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vedranburojevic/devsupervisor/internal/classify"
	"github.com/vedranburojevic/devsupervisor/internal/domain"
)

// fallbackSkip matches first lines that should suppress the fallback path
// entirely, per spec.md §4.3 step 5.
var fallbackSkip = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^warning:`),
	regexp.MustCompile(`^\s+at\s+`),
	regexp.MustCompile(`^\d+\s*\|`),
	regexp.MustCompile(`(?i)^Port \d+ is in use`),
	regexp.MustCompile(`(?i)^Default inspector port \d+ not available`),
	regexp.MustCompile(`(?i)compatibility date`),
}

var heuristicLocation = regexp.MustCompile(`([^()\[\]:]+):(\d+)(?::(\d+))?`)

// fallback implements spec.md §4.3 step 5: rule-independent heuristic
// inference applied to stderr when no catalogued pattern matches.
func (d *Detector) fallback(chunk string, ctx map[string]any) (*domain.DetectedError, bool) {
	lines := strings.Split(chunk, "\n")
	var firstLine string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			firstLine = strings.TrimSpace(l)
			break
		}
	}
	if firstLine == "" {
		return nil, false
	}
	for _, skip := range fallbackSkip {
		if skip.MatchString(firstLine) {
			return nil, false
		}
	}

	var sourceFile string
	var lineNumber, columnNumber int
	hasLocation := false
	if m := heuristicLocation.FindStringSubmatch(firstLine); m != nil {
		path := m[1]
		if strings.ContainsAny(path, "./") {
			hasLocation = true
			sourceFile = normalizeSourceFile(strings.TrimSpace(path))
			if n, err := strconv.Atoi(m[2]); err == nil {
				lineNumber = n
			}
			if m[3] != "" {
				if n, err := strconv.Atoi(m[3]); err == nil {
					columnNumber = n
				}
			}
		}
	}

	// spec.md §4.2: looksLikeError gates the fallback path. A line with no
	// recognisable source location must still read like an error to be
	// reported; a located line (heuristicLocation matched) is taken as
	// sufficient evidence on its own.
	if !hasLocation && !classify.LooksLikeError(firstLine) {
		return nil, false
	}

	e := &domain.DetectedError{
		Category:     inferCategory(firstLine),
		Severity:     domain.SeverityError,
		Message:      firstLine,
		SourceFile:   sourceFile,
		LineNumber:   lineNumber,
		ColumnNumber: columnNumber,
		RawOutput:    chunk,
		Context:      cloneContext(ctx),
	}
	e.Context["fallback"] = true

	if len(lines) > 1 {
		e.StackTrace = chunk
	}

	e.Message = cleanMessage(e.Message)
	e.Truncate()
	return e, true
}

// categoryKeywords is evaluated in order per spec.md §4.3.1.
var categoryKeywords = []struct {
	re       *regexp.Regexp
	category domain.Category
}{
	{regexp.MustCompile(`(?i)module|import|dependency`), domain.CategoryDependency},
	{regexp.MustCompile(`(?i)syntax|parse`), domain.CategorySyntax},
	{regexp.MustCompile(`(?i)compile|build|transform`), domain.CategoryCompilation},
	{regexp.MustCompile(`(?i)memory|heap`), domain.CategoryMemory},
	{regexp.MustCompile(`(?i)network|fetch|connection`), domain.CategoryNetwork},
	{regexp.MustCompile(`(?i)file|path|directory`), domain.CategoryFilesystem},
	{regexp.MustCompile(`(?i)port|env|config`), domain.CategoryEnvironment},
}

func inferCategory(line string) domain.Category {
	for _, k := range categoryKeywords {
		if k.re.MatchString(line) {
			return k.category
		}
	}
	return domain.CategoryRuntime
}
