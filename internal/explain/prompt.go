// Package explain builds the explanation prompt and turns completion output
// into an explanation plus suggested resources.
package explain

import (
	"strings"

	"github.com/errmate/errmate/internal/model"
)

// PromptInput is the user-supplied part of the prompt.
type PromptInput struct {
	ErrorText   string
	ContextText string
	TechContext string
}

const promptPreamble = `You are a senior software engineer and debugging expert specialized in analyzing programming errors and stack traces.

IMPORTANT: First, determine if the input is actually a programming error, exception, stack trace, or debugging-related issue.

WHAT IS CONSIDERED AN ERROR:
- Error messages (e.g., "TypeError: Cannot read property 'x' of undefined")
- Stack traces
- Exception messages
- Runtime errors
- Compilation errors
- Debugging issues
- Code that's not working as expected with error output

WHAT IS NOT AN ERROR (out-of-context):
- General questions (e.g., "How is weather today?", "What is JavaScript?")
- Tutorial requests
- Code explanations without errors
- Feature requests
- Non-technical questions
- Questions about concepts without error context
`

const outOfContextJSON = `{"outOfContext": true, "message": "I'm designed to help analyze programming errors, stack traces, and debugging issues. Your query appears to be a general question rather than an error message.\n\nPlease provide:\n- An error message or exception\n- A stack trace\n- A debugging issue you're encountering\n\nI'll be happy to help analyze those!"}`

const proseInstructions = `
OUT-OF-CONTEXT RESPONSE (if input is not an error):
If the input is NOT a programming error, stack trace, or debugging issue, respond EXACTLY in this JSON format (nothing else):

` + outOfContextJSON + `

ERROR ANALYSIS (if input IS an error):
If the input IS a programming error, stack trace, or debugging issue, analyze it and respond in this structure (NO JSON wrapper):

1. Plain English explanation
2. Likely root causes
3. Step-by-step fixes
4. Prevention tips

At the end, provide a JSON array of 3-5 relevant blog posts, documentation, or Stack Overflow links that would help the user understand this error better. Format as: {"resources": [{"title": "...", "url": "...", "description": "..."}]}
`

const structuredInstructions = `
RESPONSE FORMAT:
Respond with a single JSON object and nothing else. It has the fields outOfContext, message, explanation and resources.

If the input is NOT a programming error, stack trace, or debugging issue, set outOfContext to true, explanation to "", resources to [] and message to:
"I'm designed to help analyze programming errors, stack traces, and debugging issues. Your query appears to be a general question rather than an error message.\n\nPlease provide:\n- An error message or exception\n- A stack trace\n- A debugging issue you're encountering\n\nI'll be happy to help analyze those!"

If the input IS a programming error, stack trace, or debugging issue, set outOfContext to false, message to "", and put the analysis in explanation as markdown with these numbered sections:

1. Plain English explanation
2. Likely root causes
3. Step-by-step fixes
4. Prevention tips

Put 3-5 relevant blog posts, documentation, or Stack Overflow links that would help the user understand this error better in resources, each with title, url and description.
`

const promptRules = `
Rules for error analysis:

* Base explanation on official documentation and runtime semantics
* Use additional context only to improve understanding
* Do NOT copy content verbatim
* Explain clearly in your own words
* Provide real, helpful resources
`

// BuildPrompt renders the fixed instruction prompt around the input.
// With structured set, the output instructions ask for the JSON document
// described by Schema instead of prose with an embedded JSON tail.
func BuildPrompt(in PromptInput, structured bool) string {
	techContext := strings.TrimSpace(in.TechContext)
	if techContext == "" {
		techContext = model.DefaultTechContext
	}
	contextText := strings.TrimSpace(in.ContextText)
	if contextText == "" {
		contextText = "None provided"
	}

	var b strings.Builder
	b.WriteString(promptPreamble)
	if structured {
		b.WriteString(structuredInstructions)
	} else {
		b.WriteString(proseInstructions)
	}
	b.WriteString(promptRules)
	b.WriteString("\nTech context: ")
	b.WriteString(techContext)
	b.WriteString("\n\nInput to analyze:\n")
	b.WriteString(in.ErrorText)
	b.WriteString("\n\nAdditional context:\n")
	b.WriteString(contextText)

	return b.String()
}
