// Package prompt turns retrieved case records into the text a generation
// backend sees: a bounded, ordered context block ([Formatter]) and a
// three-segment prompt of instruction, context and question ([Assembler]).
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/casebot-go/internal/budget"
	"github.com/54b3r/casebot-go/internal/rag"
)

// Field names a record attribute that can be rendered into the context.
type Field string

// Renderable fields.
const (
	FieldCase    Field = "case"
	FieldDate    Field = "date"
	FieldTags    Field = "tags"
	FieldExcerpt Field = "excerpt"
	FieldURL     Field = "url"
	FieldScore   Field = "score"
)

// DefaultFields renders everything, in this order.
var DefaultFields = []Field{FieldCase, FieldDate, FieldTags, FieldExcerpt, FieldURL, FieldScore}

// DefaultLowConfidenceThreshold marks records scoring below 0.1.
const DefaultLowConfidenceThreshold float32 = 0.1

// lowConfidenceMarker annotates records below the threshold.
const lowConfidenceMarker = "[LOW CONFIDENCE]"

// truncationMarker ends a record body that was cut to fit MaxCharsPerRecord.
const truncationMarker = "…"

// ParseFields parses a comma-separated field list. An empty string yields
// DefaultFields.
func ParseFields(s string) ([]Field, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultFields, nil
	}
	var out []Field
	seen := make(map[Field]bool)
	for _, part := range strings.Split(s, ",") {
		f := Field(strings.ToLower(strings.TrimSpace(part)))
		switch f {
		case FieldCase, FieldDate, FieldTags, FieldExcerpt, FieldURL, FieldScore:
		case "":
			continue
		default:
			return nil, fmt.Errorf("prompt: unknown context field %q", part)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return DefaultFields, nil
	}
	return out, nil
}

// FormatOptions controls how records are rendered.
type FormatOptions struct {
	// MaxCharsPerRecord caps each record's rendered block in runes, the
	// ordinal and confidence marker included; 0 disables.
	MaxCharsPerRecord int

	// Fields selects and orders the rendered fields. Empty means DefaultFields.
	Fields []Field

	// LowConfidenceThreshold marks records whose score is strictly below it.
	// nil means DefaultLowConfidenceThreshold; 0 disables the marker.
	LowConfidenceThreshold *float32

	// MaxTokens bounds the whole block by budget.Estimate; 0 disables.
	// Records that do not fit are dropped from the end.
	MaxTokens int
}

// Context is the rendered context block for one query.
type Context struct {
	// Text is the block placed in the CONTEXT segment; "" when nothing was retrieved.
	Text string

	// Included is the number of records rendered.
	Included int

	// Dropped is the number of trailing records cut by the token budget.
	Dropped int

	// LowConfidence is parallel to the included records.
	LowConfidence []bool

	// AllLowConfidence is true when at least one record was retrieved and
	// every retrieved record scored below the threshold.
	AllLowConfidence bool
}

// Formatter renders records deterministically. It is safe for concurrent use.
type Formatter struct {
	opts FormatOptions
}

// NewFormatter returns a Formatter; zero-valued options take defaults.
func NewFormatter(opts FormatOptions) *Formatter {
	if len(opts.Fields) == 0 {
		opts.Fields = DefaultFields
	}
	if opts.LowConfidenceThreshold == nil {
		opts.LowConfidenceThreshold = Threshold(DefaultLowConfidenceThreshold)
	}
	return &Formatter{opts: opts}
}

// Threshold returns a pointer to v for FormatOptions.LowConfidenceThreshold.
func Threshold(v float32) *float32 { return &v }

// Options returns the resolved options.
func (f *Formatter) Options() FormatOptions { return f.opts }

// Format renders records in the order given. The input is not modified.
func (f *Formatter) Format(records []rag.Record) Context {
	var c Context
	if len(records) == 0 {
		return c
	}

	c.AllLowConfidence = true
	for _, r := range records {
		if !f.isLow(r.Score) {
			c.AllLowConfidence = false
			break
		}
	}

	alloc := budget.NewAllocator(f.opts.MaxTokens)
	blocks := make([]string, 0, len(records))
	for i, r := range records {
		low := f.isLow(r.Score)
		block := f.renderRecord(i+1, r, low)
		if !alloc.Take(block) {
			c.Dropped = len(records) - i
			break
		}
		blocks = append(blocks, block)
		c.LowConfidence = append(c.LowConfidence, low)
	}

	c.Included = len(blocks)
	c.Text = strings.Join(blocks, "\n\n")
	return c
}

// isLow reports whether score is below the low-confidence threshold.
// A zero threshold marks nothing.
func (f *Formatter) isLow(score float32) bool {
	t := *f.opts.LowConfidenceThreshold
	return t > 0 && score < t
}

// renderRecord renders one record:
//
//	[1] [LOW CONFIDENCE]
//	Case: 19-060
//	Date: 2020-06-02
//	...
func (f *Formatter) renderRecord(ordinal int, r rag.Record, low bool) string {
	var head strings.Builder
	fmt.Fprintf(&head, "[%d]", ordinal)
	if low {
		head.WriteString(" " + lowConfidenceMarker)
	}

	md := r.Metadata
	var lines []string
	for _, field := range f.opts.Fields {
		switch field {
		case FieldCase:
			lines = append(lines, "Case: "+md.Case)
		case FieldDate:
			lines = append(lines, "Date: "+md.Date)
		case FieldTags:
			if len(md.Tags) > 0 {
				lines = append(lines, "Tags: "+strings.Join(md.Tags, ", "))
			}
		case FieldExcerpt:
			if md.Excerpt != "" {
				lines = append(lines, "Excerpt: "+md.Excerpt)
			}
		case FieldURL:
			if md.LinkURL != "" {
				if md.LinkText != "" && md.LinkText != md.LinkURL {
					lines = append(lines, fmt.Sprintf("URL: %s (%s)", md.LinkURL, md.LinkText))
				} else {
					lines = append(lines, "URL: "+md.LinkURL)
				}
			}
		case FieldScore:
			lines = append(lines, fmt.Sprintf("Score: %.3f", r.Score))
		}
	}

	block := head.String()
	if len(lines) > 0 {
		block += "\n" + strings.Join(lines, "\n")
	}
	return truncateRunes(block, f.opts.MaxCharsPerRecord)
}

// truncateRunes cuts s to at most max runes, ending with the truncation
// marker when anything was removed. max <= 0 disables truncation.
func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	markerLen := utf8.RuneCountInString(truncationMarker)
	if max <= markerLen {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-markerLen]) + truncationMarker
}
