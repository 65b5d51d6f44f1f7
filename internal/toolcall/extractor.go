package toolcall

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Record is the normalized representation of one detected tool invocation
type Record struct {
	CallID        string
	ToolName      string
	ArgumentsJSON string
}

// Result is the outcome of scanning assistant text for a tool invocation.
// When no known tool tag is present, TextBefore equals the full input - the
// absence of a match is not an error.
type Result struct {
	HasToolCall bool
	ToolCall    *Record
	TextBefore  string
}

// Extractor scans assistant output for XML-tagged tool invocations. The set
// of known tool names is fixed at construction so that XML-like substrings
// (code samples, markup) are never misclassified: only exact, case-sensitive
// tag-name matches count.
//
// At most one tool call is extracted per assistant turn; anything after the
// first matched block is discarded. Multiple sequential tool calls are a
// known protocol limitation, not supported.
type Extractor struct {
	known map[string]bool
}

// NewExtractor creates an extractor recognizing exactly the given tool names
func NewExtractor(toolNames []string) *Extractor {
	known := make(map[string]bool, len(toolNames))
	for _, name := range toolNames {
		if name != "" {
			known[name] = true
		}
	}
	return &Extractor{known: known}
}

// Extract scans text for the first recognized tool tag. Identical results are
// produced for the same complete text regardless of how it was delivered, so
// the streaming path calls this once on the fully buffered text.
func (e *Extractor) Extract(text string) Result {
	noMatch := Result{TextBefore: text}
	if len(e.known) == 0 || text == "" {
		return noMatch
	}

	openIdx, name := e.findFirstKnownTag(text)
	if openIdx < 0 {
		return noMatch
	}

	openEnd := openIdx + len(name) + 2 // past "<name>"
	closeTag := "</" + name + ">"
	closeIdx := strings.Index(text[openEnd:], closeTag)
	if closeIdx < 0 {
		logrus.WithField("tool", name).Debug("Unclosed tool tag, treating as plain text")
		return noMatch
	}

	inner := text[openEnd : openEnd+closeIdx]
	args := parseFlatParameters(inner)

	argsJSON, err := json.Marshal(args)
	if err != nil {
		// map[string]string cannot fail to marshal; kept for completeness
		logrus.WithField("tool", name).Warnf("Failed to serialize tool arguments: %v", err)
		return noMatch
	}

	return Result{
		HasToolCall: true,
		ToolCall: &Record{
			CallID:        "call_" + uuid.NewString(),
			ToolName:      name,
			ArgumentsJSON: string(argsJSON),
		},
		TextBefore: text[:openIdx],
	}
}

// findFirstKnownTag locates the earliest opening tag whose name is a known
// tool identifier. Unknown tags are skipped, never misclassified.
func (e *Extractor) findFirstKnownTag(text string) (int, string) {
	search := text
	offset := 0
	for {
		lt := strings.IndexByte(search, '<')
		if lt < 0 {
			return -1, ""
		}
		gt := strings.IndexByte(search[lt:], '>')
		if gt < 0 {
			return -1, ""
		}

		name := search[lt+1 : lt+gt]
		if e.known[name] {
			return offset + lt, name
		}

		search = search[lt+1:]
		offset += lt + 1
	}
}

// parseFlatParameters reads the child tags of a matched tool block as flat
// name/value pairs. Nested object parameters are not supported.
func parseFlatParameters(inner string) map[string]string {
	args := make(map[string]string)
	rest := inner
	for {
		lt := strings.IndexByte(rest, '<')
		if lt < 0 {
			break
		}
		gt := strings.IndexByte(rest[lt:], '>')
		if gt < 0 {
			break
		}

		name := rest[lt+1 : lt+gt]
		if name == "" || strings.HasPrefix(name, "/") {
			rest = rest[lt+1:]
			continue
		}

		valueStart := lt + gt + 1
		closeTag := "</" + name + ">"
		closeIdx := strings.Index(rest[valueStart:], closeTag)
		if closeIdx < 0 {
			rest = rest[lt+1:]
			continue
		}

		args[name] = strings.TrimSpace(rest[valueStart : valueStart+closeIdx])
		rest = rest[valueStart+closeIdx+len(closeTag):]
	}
	return args
}
