package prompt

import (
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/budget"
)

// OptionsFromEnv reads CONTEXT_MAX_CHARS_PER_RECORD, CONTEXT_MAX_TOKENS,
// CONTEXT_FIELDS and LOW_CONFIDENCE_THRESHOLD. An unset CONTEXT_MAX_TOKENS
// selects budget.DefaultMaxContextTokens and "0" disables the budget; other
// unset variables leave the option zero so NewFormatter applies its default,
// while LOW_CONFIDENCE_THRESHOLD=0 disables the low-confidence marker.
func OptionsFromEnv() (FormatOptions, error) {
	const op = "prompt.OptionsFromEnv"
	var (
		opts FormatOptions
		err  error
	)

	if opts.MaxCharsPerRecord, err = envNonNegative("CONTEXT_MAX_CHARS_PER_RECORD"); err != nil {
		return opts, apperr.New(apperr.KindConfiguration, op, err)
	}
	opts.MaxTokens = budget.DefaultMaxContextTokens
	if os.Getenv("CONTEXT_MAX_TOKENS") != "" {
		if opts.MaxTokens, err = envNonNegative("CONTEXT_MAX_TOKENS"); err != nil {
			return opts, apperr.New(apperr.KindConfiguration, op, err)
		}
	}
	if opts.Fields, err = ParseFields(os.Getenv("CONTEXT_FIELDS")); err != nil {
		return opts, apperr.New(apperr.KindConfiguration, op, err)
	}
	if v := os.Getenv("LOW_CONFIDENCE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil || f < 0 || f > 1 {
			return opts, apperr.Errorf(apperr.KindConfiguration, op, "LOW_CONFIDENCE_THRESHOLD=%q must be a number in [0, 1]", v)
		}
		opts.LowConfidenceThreshold = Threshold(float32(f))
	}
	return opts, nil
}

// envNonNegative parses the named env var as a non-negative int; unset is 0.
func envNonNegative(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s=%q must be a non-negative integer", key, v)
	}
	return n, nil
}
