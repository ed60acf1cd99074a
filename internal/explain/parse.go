package explain

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/errmate/errmate/internal/model"
)

// DefaultOutOfContextMessage is served when an out-of-context marker is
// found but its message cannot be recovered.
const DefaultOutOfContextMessage = "I'm designed to help analyze programming errors, stack traces, and debugging issues. Please provide an error message, stack trace, or debugging issue you're encountering."

// Result is the parsed form of a completion.
type Result struct {
	Explanation  string
	Resources    []model.Resource
	OutOfContext bool
	// Structured is true when the completion was a JSON document rather
	// than prose.
	Structured bool
}

var (
	outOfContextStart = regexp.MustCompile(`\{\s*"outOfContext"\s*:\s*true`)
	outOfContextLoose = regexp.MustCompile(`\{"outOfContext":\s*true[^}]*"message":\s*"([^"]+)"[^}]*\}`)
	resourcesStart    = regexp.MustCompile(`\{\s*"resources"\s*:\s*\[`)
	emptyFence        = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*```\\s*$")
	wrappingFence     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n(.*)\n\\s*```$")
)

type structuredDoc struct {
	OutOfContext bool             `json:"outOfContext"`
	Message      string           `json:"message"`
	Explanation  string           `json:"explanation"`
	Resources    []model.Resource `json:"resources"`
}

// Parse interprets completion content.
//
// A schema-valid JSON document is used as is, and a JSON document that
// misses the schema keeps whatever fields decode. Anything else goes through
// best-effort extraction: an out-of-context marker collapses the result to
// its message; otherwise a {"resources": [...]} fragment is decoded and cut
// from the text. A fragment that fails to decode leaves the text unchanged
// and yields no resources.
func Parse(content string) Result {
	if res, ok := parseStructured(content); ok {
		return res
	}

	if msg, ok := extractOutOfContext(content); ok {
		return Result{Explanation: msg, Resources: []model.Resource{}, OutOfContext: true}
	}

	explanation, resources := extractResources(content)
	return Result{Explanation: explanation, Resources: resources}
}

func parseStructured(content string) (Result, bool) {
	doc := strings.TrimSpace(content)
	if m := wrappingFence.FindStringSubmatch(doc); m != nil {
		doc = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(doc, "{") || !json.Valid([]byte(doc)) {
		return Result{}, false
	}
	if err := validateDocument([]byte(doc)); err != nil {
		return decodeLenient([]byte(doc))
	}

	var parsed structuredDoc
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return Result{}, false
	}
	return structuredResult(parsed), true
}

// decodeLenient recovers a document that misses the schema, such as a
// dropped "message" or an extra key on a resource. Resources without a URL
// or with the wrong shape are skipped. It reports false when the document
// carries nothing usable.
func decodeLenient(doc []byte) (Result, bool) {
	var loose struct {
		OutOfContext bool              `json:"outOfContext"`
		Message      string            `json:"message"`
		Explanation  string            `json:"explanation"`
		Resources    []json.RawMessage `json:"resources"`
	}
	if err := json.Unmarshal(doc, &loose); err != nil {
		return Result{}, false
	}

	parsed := structuredDoc{
		OutOfContext: loose.OutOfContext,
		Message:      loose.Message,
		Explanation:  loose.Explanation,
	}
	for _, raw := range loose.Resources {
		var r model.Resource
		if err := json.Unmarshal(raw, &r); err != nil || strings.TrimSpace(r.URL) == "" {
			continue
		}
		parsed.Resources = append(parsed.Resources, r)
	}

	if !parsed.OutOfContext && strings.TrimSpace(parsed.Explanation) == "" && len(parsed.Resources) == 0 {
		return Result{}, false
	}
	return structuredResult(parsed), true
}

func structuredResult(parsed structuredDoc) Result {
	if parsed.OutOfContext {
		msg := strings.TrimSpace(parsed.Message)
		if msg == "" {
			msg = DefaultOutOfContextMessage
		}
		return Result{Explanation: msg, Resources: []model.Resource{}, OutOfContext: true, Structured: true}
	}

	resources := parsed.Resources
	if resources == nil {
		resources = []model.Resource{}
	}
	return Result{
		Explanation: strings.TrimSpace(parsed.Explanation),
		Resources:   resources,
		Structured:  true,
	}
}

func extractOutOfContext(content string) (string, bool) {
	if loc := outOfContextStart.FindStringIndex(content); loc != nil {
		var parsed structuredDoc
		if _, err := decodeAt(content, loc[0], &parsed); err == nil && parsed.Message != "" {
			return parsed.Message, true
		}
	}

	m := outOfContextLoose.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	msg := strings.ReplaceAll(m[1], `\n`, "\n")
	if msg == "" {
		msg = DefaultOutOfContextMessage
	}
	return msg, true
}

func extractResources(content string) (string, []model.Resource) {
	loc := resourcesStart.FindStringIndex(content)
	if loc == nil {
		return content, []model.Resource{}
	}

	var parsed struct {
		Resources []model.Resource `json:"resources"`
	}
	end, err := decodeAt(content, loc[0], &parsed)
	if err != nil {
		return content, []model.Resource{}
	}

	stripped := content[:loc[0]] + content[end:]
	stripped = strings.TrimSpace(emptyFence.ReplaceAllString(strings.TrimSpace(stripped), ""))

	if parsed.Resources == nil {
		parsed.Resources = []model.Resource{}
	}
	return stripped, parsed.Resources
}

// decodeAt decodes the single JSON value starting at offset start into v and
// returns the offset just past it.
func decodeAt(content string, start int, v any) (int, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(content[start:])))
	if err := dec.Decode(v); err != nil {
		return 0, err
	}
	return start + int(dec.InputOffset()), nil
}
