// Package format converts explanation markdown into display blocks.
//
// It understands the small line grammar completions use: fenced code,
// #-style and bold-only headings, numbered sections, bullet lists and
// paragraphs with inline code and bold. Anything else is paragraph text.
package format

import (
	"regexp"
	"strings"
)

// BlockType identifies a display block.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockStep      BlockType = "step"
	BlockCode      BlockType = "code"
	BlockParagraph BlockType = "paragraph"
	BlockList      BlockType = "list"
)

// SpanType identifies an inline span.
type SpanType string

const (
	SpanText SpanType = "text"
	SpanCode SpanType = "code"
	SpanBold SpanType = "bold"
)

// Span is a run of inline text.
type Span struct {
	Type SpanType `json:"type"`
	Text string   `json:"text"`
}

// Block is one display element.
//
// Fields are populated by type: headings use Level and Text, steps use
// Number, Title and Paragraphs, code uses Lang and Code, paragraphs use
// Spans and lists use Items.
type Block struct {
	Type       BlockType `json:"type"`
	Level      int       `json:"level,omitempty"`
	Text       string    `json:"text,omitempty"`
	Number     string    `json:"number,omitempty"`
	Title      string    `json:"title,omitempty"`
	Paragraphs [][]Span  `json:"paragraphs,omitempty"`
	Lang       string    `json:"lang,omitempty"`
	Code       string    `json:"code,omitempty"`
	Spans      []Span    `json:"spans,omitempty"`
	Items      [][]Span  `json:"items,omitempty"`
}

var (
	boldHeading   = regexp.MustCompile(`^\*\*([^*]+)\*\*\s*$`)
	numbered      = regexp.MustCompile(`^(\d+)\.\s+(.+)`)
	stepTitle     = regexp.MustCompile(`^(?:\*\*)?([^*:\n]+)(?:\*\*)?:?(.*)$`)
	bullet        = regexp.MustCompile(`^[-*•]\s+`)
	leadingHashes = regexp.MustCompile(`^#+\s*`)
	inline        = regexp.MustCompile("`[^`]+`|\\*\\*[^*]+\\*\\*")
	paragraphGap  = regexp.MustCompile(`\n\s*\n`)
)

type formatter struct {
	blocks    []Block
	paragraph []string
	seen      map[string]struct{}

	inCode   bool
	codeLang string
	code     []string
}

// Format converts text into display blocks.
func Format(text string) []Block {
	f := &formatter{seen: make(map[string]struct{})}

	for _, line := range strings.Split(text, "\n") {
		f.line(line)
	}

	if f.inCode {
		f.flushCode()
	}
	f.flushParagraph()

	if f.blocks == nil {
		return []Block{}
	}
	return f.blocks
}

func (f *formatter) line(line string) {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "```") {
		f.flushParagraph()
		if f.inCode {
			f.flushCode()
			return
		}
		f.inCode = true
		f.codeLang = strings.TrimSpace(trimmed[3:])
		return
	}
	if f.inCode {
		f.code = append(f.code, line)
		return
	}

	for level, prefix := range []string{"# ", "## ", "### "} {
		if strings.HasPrefix(trimmed, prefix) {
			f.flushParagraph()
			f.heading(level+1, strings.ReplaceAll(trimmed[len(prefix):], "**", ""))
			return
		}
	}

	if m := boldHeading.FindStringSubmatch(trimmed); m != nil {
		f.flushParagraph()
		f.heading(3, m[1])
		return
	}

	if m := numbered.FindStringSubmatch(trimmed); m != nil {
		f.flushParagraph()
		f.step(m[1], m[2])
		return
	}

	if trimmed == "" {
		f.flushParagraph()
		return
	}

	if len(f.paragraph) == 0 && f.isSeen(normalize(trimmed)) {
		return
	}
	f.paragraph = append(f.paragraph, line)
}

func (f *formatter) heading(level int, text string) {
	text = strings.TrimSpace(text)
	key := strings.ToLower(text)
	if text == "" || f.isSeen(key) {
		return
	}
	f.seen[key] = struct{}{}
	f.blocks = append(f.blocks, Block{Type: BlockHeading, Level: level, Text: text})
}

func (f *formatter) step(number, content string) {
	var title, body string
	if m := stepTitle.FindStringSubmatch(content); m != nil {
		title = strings.TrimSpace(m[1])
		body = strings.TrimSpace(m[2])
	} else {
		title = strings.TrimSpace(strings.ReplaceAll(content, "**", ""))
	}

	key := strings.ToLower(title)
	if f.isSeen(key) {
		title = ""
	} else if key != "" {
		f.seen[key] = struct{}{}
	}

	block := Block{Type: BlockStep, Number: number, Title: title}
	for _, para := range paragraphGap.Split(body, -1) {
		para = strings.TrimSpace(para)
		if para == "" || f.isSeen(normalize(para)) {
			continue
		}
		block.Paragraphs = append(block.Paragraphs, Inline(para))
	}
	f.blocks = append(f.blocks, block)
}

func (f *formatter) flushCode() {
	f.blocks = append(f.blocks, Block{
		Type: BlockCode,
		Lang: f.codeLang,
		Code: strings.Join(f.code, "\n"),
	})
	f.inCode = false
	f.codeLang = ""
	f.code = nil
}

// flushParagraph emits the buffered lines. Runs of bullet lines become
// lists and the other runs become paragraphs.
func (f *formatter) flushParagraph() {
	lines := f.paragraph
	f.paragraph = nil

	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" || f.isSeen(strings.ToLower(strings.TrimSpace(leadingHashes.ReplaceAllString(text, "")))) {
		return
	}

	var (
		prose []string
		items [][]Span
	)
	emitProse := func() {
		if p := strings.TrimSpace(strings.Join(prose, "\n")); p != "" {
			f.blocks = append(f.blocks, Block{Type: BlockParagraph, Spans: Inline(p)})
		}
		prose = nil
	}
	emitItems := func() {
		if len(items) > 0 {
			f.blocks = append(f.blocks, Block{Type: BlockList, Items: items})
		}
		items = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if loc := bullet.FindStringIndex(trimmed); loc != nil {
			emitProse()
			items = append(items, Inline(trimmed[loc[1]:]))
			continue
		}
		emitItems()
		prose = append(prose, trimmed)
	}
	emitProse()
	emitItems()
}

func (f *formatter) isSeen(key string) bool {
	_, ok := f.seen[key]
	return ok
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = leadingHashes.ReplaceAllString(s, "")
	return strings.ToLower(strings.TrimSpace(s))
}

// Inline splits text into text, code and bold spans.
func Inline(text string) []Span {
	spans := []Span{}
	last := 0
	for _, loc := range inline.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			spans = append(spans, Span{Type: SpanText, Text: text[last:loc[0]]})
		}
		match := text[loc[0]:loc[1]]
		if strings.HasPrefix(match, "`") {
			spans = append(spans, Span{Type: SpanCode, Text: match[1 : len(match)-1]})
		} else {
			spans = append(spans, Span{Type: SpanBold, Text: match[2 : len(match)-2]})
		}
		last = loc[1]
	}
	if last < len(text) {
		spans = append(spans, Span{Type: SpanText, Text: text[last:]})
	}
	return spans
}
