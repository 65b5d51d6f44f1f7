// Package toolcall bridges OpenAI tool calling onto a vendor that has no
// native tool API: tool definitions are rendered as an XML-tag schema inside
// the system prompt, and tool invocations are parsed back out of the
// assistant's free text.
package toolcall

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"qwen-bridge/internal/models"
)

// UsageInstructions is the fixed instruction block injected alongside the tool
// schema. Compliance is prompt-engineering-dependent, so the wording is part
// of the protocol contract.
const UsageInstructions = `# Tool Use Rules

1. In each assistant turn, make at most ONE tool call.
2. Format the tool call as XML tags exactly as shown in the usage examples, with one child tag per parameter.
3. After making a tool call, STOP and wait for the tool result before continuing.
4. Do not invent tools that are not listed above.`

// parameterSchema is the subset of JSON Schema read from tool definitions
type parameterSchema struct {
	Properties map[string]parameterProperty `json:"properties"`
	Required   []string                     `json:"required"`
}

type parameterProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// TranscodeSchema renders the tool definitions as an XML-tag textual schema.
// Malformed entries (missing name) are skipped with a warning; one bad tool
// never fails the batch. Empty input yields an empty wrapper.
func TranscodeSchema(tools []models.Tool) string {
	var b strings.Builder
	b.WriteString("<tools>\n")

	for _, tool := range tools {
		if tool.Function.Name == "" {
			logrus.WithField("type", tool.Type).Warn("Skipping tool definition without a name")
			continue
		}
		writeToolSection(&b, tool)
	}

	b.WriteString("</tools>")
	return b.String()
}

func writeToolSection(b *strings.Builder, tool models.Tool) {
	fn := tool.Function

	fmt.Fprintf(b, "\n## %s\n\n", fn.Name)
	if fn.Description != "" {
		fmt.Fprintf(b, "Description: %s\n\n", fn.Description)
	}

	var schema parameterSchema
	if len(fn.Parameters) > 0 {
		if err := json.Unmarshal(fn.Parameters, &schema); err != nil {
			logrus.WithFields(logrus.Fields{
				"tool":  fn.Name,
				"error": err,
			}).Warn("Unparseable tool parameter schema, emitting tool without parameters")
			schema = parameterSchema{}
		}
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	if len(names) > 0 {
		b.WriteString("Parameters:\n")
		for _, name := range names {
			prop := schema.Properties[name]
			requirement := "optional"
			if required[name] {
				requirement = "required"
			}
			typ := prop.Type
			if typ == "" {
				typ = "string"
			}
			if prop.Description != "" {
				fmt.Fprintf(b, "- %s: (%s) %s - %s\n", name, requirement, typ, prop.Description)
			} else {
				fmt.Fprintf(b, "- %s: (%s) %s\n", name, requirement, typ)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Usage:\n")
	fmt.Fprintf(b, "<%s>\n", fn.Name)
	for _, name := range names {
		fmt.Fprintf(b, "<%s>%s</%s>\n", name, placeholderValue(schema.Properties[name].Type), name)
	}
	fmt.Fprintf(b, "</%s>\n", fn.Name)
}

// placeholderValue returns a type-appropriate example value for the usage block
func placeholderValue(typ string) string {
	switch typ {
	case "number", "integer":
		return "100"
	case "boolean":
		return "true"
	case "array":
		return "[]"
	case "object":
		return "{}"
	default:
		return "example_value"
	}
}

// SystemPromptAddition is the full block appended to the system prompt when
// tools are present: the transcoded schema plus the usage instructions.
func SystemPromptAddition(tools []models.Tool) string {
	return TranscodeSchema(tools) + "\n\n" + UsageInstructions
}

// ToolNames extracts the known tool identifiers used by the extractor
func ToolNames(tools []models.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		if tool.Function.Name != "" {
			names = append(names, tool.Function.Name)
		}
	}
	return names
}
