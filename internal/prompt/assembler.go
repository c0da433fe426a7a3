package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultInstruction is the system instruction used when none is configured.
const DefaultInstruction = "You will receive a question together with police disciplinary case records. " +
	"Use all of the case records you are handed and answer using the provided information. " +
	"If the records are insufficient, give the links with the highest score. " +
	"Return the answer plus the relevant date and URL. Put each URL on its own line. " +
	"If a record is marked [LOW CONFIDENCE], say you are not sure but still give the top links."

// HedgeInstruction is appended when every retrieved record is low confidence.
const HedgeInstruction = "None of the retrieved case records is a confident match for this question. " +
	"Begin your answer by saying you are not sure, then list the most relevant links anyway."

// Segment labels, in render order.
const (
	LabelInstruction = "SYSTEM INSTRUCTION"
	LabelContext     = "CONTEXT"
	LabelQuestion    = "QUESTION"
)

// ErrMalformedPrompt is returned by Parse for text that Render did not produce.
var ErrMalformedPrompt = errors.New("prompt: malformed prompt text")

// Prompt is the structured prompt for one query. It is rendered to text only
// at the generation boundary.
type Prompt struct {
	Instruction string
	Context     string
	Question    string
}

// Assembler builds prompts around a fixed system instruction.
type Assembler struct {
	instruction string
}

// NewAssembler returns an Assembler. An empty instruction selects DefaultInstruction.
func NewAssembler(instruction string) *Assembler {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	return &Assembler{instruction: instruction}
}

// Assemble combines the instruction, the rendered context and the question.
// When every retrieved record is low confidence, the hedging directive is
// appended to the instruction.
func (a *Assembler) Assemble(ctx Context, question string) Prompt {
	instruction := a.instruction
	if ctx.AllLowConfidence {
		instruction += "\n\n" + HedgeInstruction
	}
	return Prompt{
		Instruction: instruction,
		Context:     ctx.Text,
		Question:    question,
	}
}

// Render emits all three segments. Each segment is
//
//	[LABEL | N bytes]
//	<content>
//	[END LABEL]
//
// with segments separated by a blank line. The byte length makes the format
// unambiguous even when content contains label-like text.
func (p Prompt) Render() string {
	var b strings.Builder
	writeSegment(&b, LabelInstruction, p.Instruction)
	b.WriteString("\n")
	writeSegment(&b, LabelContext, p.Context)
	b.WriteString("\n")
	writeSegment(&b, LabelQuestion, p.Question)
	return b.String()
}

// RenderUser emits only the context and question segments, for backends
// that carry the instruction as a separate system message.
func (p Prompt) RenderUser() string {
	var b strings.Builder
	writeSegment(&b, LabelContext, p.Context)
	b.WriteString("\n")
	writeSegment(&b, LabelQuestion, p.Question)
	return b.String()
}

func writeSegment(b *strings.Builder, label, content string) {
	fmt.Fprintf(b, "[%s | %d bytes]\n", label, len(content))
	b.WriteString(content)
	fmt.Fprintf(b, "\n[END %s]\n", label)
}

// Parse recovers a Prompt from Render or RenderUser output. For RenderUser
// output the Instruction is empty.
func Parse(s string) (Prompt, error) {
	var p Prompt
	rest := s

	label, content, rest, err := readSegment(rest)
	if err != nil {
		return Prompt{}, err
	}
	if label == LabelInstruction {
		p.Instruction = content
		if rest, err = expectSeparator(rest); err != nil {
			return Prompt{}, err
		}
		if label, content, rest, err = readSegment(rest); err != nil {
			return Prompt{}, err
		}
	}
	if label != LabelContext {
		return Prompt{}, fmt.Errorf("%w: expected %s segment, got %q", ErrMalformedPrompt, LabelContext, label)
	}
	p.Context = content

	if rest, err = expectSeparator(rest); err != nil {
		return Prompt{}, err
	}
	if label, content, rest, err = readSegment(rest); err != nil {
		return Prompt{}, err
	}
	if label != LabelQuestion {
		return Prompt{}, fmt.Errorf("%w: expected %s segment, got %q", ErrMalformedPrompt, LabelQuestion, label)
	}
	p.Question = content

	if rest != "" {
		return Prompt{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedPrompt, len(rest))
	}
	return p, nil
}

// readSegment consumes one segment from the front of s.
func readSegment(s string) (label, content, rest string, err error) {
	nl := strings.IndexByte(s, '\n')
	if nl < 2 || s[0] != '[' || s[nl-1] != ']' {
		return "", "", "", fmt.Errorf("%w: missing segment header", ErrMalformedPrompt)
	}
	header := s[1 : nl-1]
	label, lenPart, ok := strings.Cut(header, " | ")
	if !ok || !strings.HasSuffix(lenPart, " bytes") {
		return "", "", "", fmt.Errorf("%w: bad segment header %q", ErrMalformedPrompt, header)
	}
	n, convErr := strconv.Atoi(strings.TrimSuffix(lenPart, " bytes"))
	if convErr != nil || n < 0 {
		return "", "", "", fmt.Errorf("%w: bad segment length in %q", ErrMalformedPrompt, header)
	}

	body := s[nl+1:]
	if len(body) < n {
		return "", "", "", fmt.Errorf("%w: segment %s truncated", ErrMalformedPrompt, label)
	}
	content = body[:n]
	footer := "\n[END " + label + "]\n"
	if !strings.HasPrefix(body[n:], footer) {
		return "", "", "", fmt.Errorf("%w: segment %s not terminated", ErrMalformedPrompt, label)
	}
	return label, content, body[n+len(footer):], nil
}

// expectSeparator consumes the blank line between segments.
func expectSeparator(s string) (string, error) {
	if !strings.HasPrefix(s, "\n") {
		return "", fmt.Errorf("%w: missing segment separator", ErrMalformedPrompt)
	}
	return s[1:], nil
}
