// Package budget provides token budget estimation for prompts sent to
// generation backends. Because casebot supports several backends with
// different tokenizers, it uses a conservative character heuristic:
// 1 token ≈ 4 characters of English prose.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default budget for the retrieved-records
	// block. It leaves room for the instruction, question and answer inside
	// an 8k-context model such as Llama 3 8B.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// ~4 tokens of per-message framing in most chat APIs.
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Allocator hands out a fixed token budget to successive text blocks.
// The zero value, or one built with max <= 0, is unbounded.
type Allocator struct {
	max  int
	used int
}

// NewAllocator returns an Allocator with max tokens available.
func NewAllocator(max int) *Allocator {
	return &Allocator{max: max}
}

// Take reserves the estimated cost of s and reports whether it fit.
// A block that does not fit reserves nothing.
func (a *Allocator) Take(s string) bool {
	cost := Estimate(s)
	if a.max > 0 && a.used+cost > a.max {
		return false
	}
	a.used += cost
	return true
}

// Used returns the tokens reserved so far.
func (a *Allocator) Used() int { return a.used }

// Remaining returns the tokens still available, or -1 when unbounded.
func (a *Allocator) Remaining() int {
	if a.max <= 0 {
		return -1
	}
	return a.max - a.used
}
