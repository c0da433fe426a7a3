package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/casebot-go/internal/rag"
)

func caseRecord(id string, score float32, md rag.CaseMetadata) rag.Record {
	return rag.Record{ID: id, Score: score, Metadata: md}
}

var excessiveForce2020 = caseRecord("p1", 0.82, rag.CaseMetadata{
	Case:     "19-060",
	Date:     "2020-06-02",
	Tags:     []string{"excessive force"},
	Excerpt:  "Officer struck a handcuffed arrestee.",
	LinkURL:  "https://example.org/cases/19-060.pdf",
	LinkText: "https://example.org/cases/19-060.pdf",
})

func TestFormat_RendersFieldsInOrder(t *testing.T) {
	t.Parallel()

	f := NewFormatter(FormatOptions{})
	got := f.Format([]rag.Record{excessiveForce2020})

	want := "[1]\n" +
		"Case: 19-060\n" +
		"Date: 2020-06-02\n" +
		"Tags: excessive force\n" +
		"Excerpt: Officer struck a handcuffed arrestee.\n" +
		"URL: https://example.org/cases/19-060.pdf\n" +
		"Score: 0.820"
	assert.Equal(t, want, got.Text)
	assert.Equal(t, 1, got.Included)
	assert.Equal(t, []bool{false}, got.LowConfidence)
	assert.False(t, got.AllLowConfidence)
}

func TestFormat_PreservesRecordOrder(t *testing.T) {
	t.Parallel()

	records := []rag.Record{
		caseRecord("a", 0.9, rag.CaseMetadata{Case: "A", Date: "d"}),
		caseRecord("b", 0.8, rag.CaseMetadata{Case: "B", Date: "d"}),
		caseRecord("c", 0.7, rag.CaseMetadata{Case: "C", Date: "d"}),
	}
	got := NewFormatter(FormatOptions{Fields: []Field{FieldCase}}).Format(records)

	assert.Equal(t, "[1]\nCase: A\n\n[2]\nCase: B\n\n[3]\nCase: C", got.Text)
	assert.Less(t, strings.Index(got.Text, "Case: A"), strings.Index(got.Text, "Case: B"))
}

func TestFormat_PerRecordCap(t *testing.T) {
	t.Parallel()

	excerpt := strings.Repeat("é", 500)
	records := []rag.Record{
		caseRecord("x", 0.5, rag.CaseMetadata{Case: "X", Date: "d", Excerpt: excerpt}),
		caseRecord("y", 0.01, rag.CaseMetadata{Case: "Y", Date: "d", Excerpt: excerpt}),
	}
	got := NewFormatter(FormatOptions{MaxCharsPerRecord: 200}).Format(records)

	blocks := strings.Split(got.Text, "\n\n")
	require.Len(t, blocks, 2)
	for _, block := range blocks {
		assert.LessOrEqual(t, utf8.RuneCountInString(block), 200, "the whole block counts, header included")
		assert.True(t, strings.HasSuffix(block, truncationMarker), "truncation must be explicit")
	}
	assert.True(t, strings.HasPrefix(blocks[0], "[1]\nCase: X"))
	assert.True(t, strings.HasPrefix(blocks[1], "[2] [LOW CONFIDENCE]\nCase: Y"))
	assert.Equal(t, []bool{false, true}, got.LowConfidence)
}

func TestFormat_PerRecordCapSmallerThanHeader(t *testing.T) {
	t.Parallel()

	r := caseRecord("y", 0.01, rag.CaseMetadata{Case: "Y", Date: "d"})
	got := NewFormatter(FormatOptions{MaxCharsPerRecord: 8}).Format([]rag.Record{r})

	assert.Equal(t, 8, utf8.RuneCountInString(got.Text))
	assert.Equal(t, "[1] [LO"+truncationMarker, got.Text)
}

func TestFormat_LowConfidence(t *testing.T) {
	t.Parallel()

	records := []rag.Record{
		caseRecord("a", 0.09, rag.CaseMetadata{Case: "A", Date: "d"}),
		caseRecord("b", 0.05, rag.CaseMetadata{Case: "B", Date: "d"}),
	}
	got := NewFormatter(FormatOptions{}).Format(records)

	assert.True(t, got.AllLowConfidence)
	assert.Equal(t, []bool{true, true}, got.LowConfidence)
	assert.Contains(t, got.Text, "[1] [LOW CONFIDENCE]")

	records[0].Score = 0.1 // threshold is exclusive
	got = NewFormatter(FormatOptions{}).Format(records)
	assert.False(t, got.AllLowConfidence)
	assert.Equal(t, []bool{false, true}, got.LowConfidence)
}

func TestFormat_ZeroThresholdDisablesMarker(t *testing.T) {
	t.Parallel()

	records := []rag.Record{
		caseRecord("a", 0.01, rag.CaseMetadata{Case: "A", Date: "d"}),
		caseRecord("b", 0, rag.CaseMetadata{Case: "B", Date: "d"}),
	}
	got := NewFormatter(FormatOptions{LowConfidenceThreshold: Threshold(0)}).Format(records)

	assert.False(t, got.AllLowConfidence)
	assert.Equal(t, []bool{false, false}, got.LowConfidence)
	assert.NotContains(t, got.Text, lowConfidenceMarker)

	got = NewFormatter(FormatOptions{LowConfidenceThreshold: Threshold(0.5)}).Format(records)
	assert.True(t, got.AllLowConfidence)
}

func TestFormat_Empty(t *testing.T) {
	t.Parallel()

	got := NewFormatter(FormatOptions{}).Format(nil)
	assert.Equal(t, "", got.Text)
	assert.Zero(t, got.Included)
	assert.False(t, got.AllLowConfidence, "no records is not the same as low-confidence records")
}

func TestFormat_TokenBudgetDropsTail(t *testing.T) {
	t.Parallel()

	var records []rag.Record
	for range 10 {
		records = append(records, caseRecord("r", 0.5, rag.CaseMetadata{Case: "C", Date: "d", Excerpt: strings.Repeat("w", 400)}))
	}
	got := NewFormatter(FormatOptions{MaxTokens: 350}).Format(records)

	assert.Equal(t, 3, got.Included)
	assert.Equal(t, 7, got.Dropped)
	assert.Len(t, got.LowConfidence, 3)
}

func TestFormat_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	records := []rag.Record{excessiveForce2020}
	before := records[0].Metadata.Tags[0]
	_ = NewFormatter(FormatOptions{MaxCharsPerRecord: 5}).Format(records)
	assert.Equal(t, before, records[0].Metadata.Tags[0])
	assert.Equal(t, "Officer struck a handcuffed arrestee.", records[0].Metadata.Excerpt)
}

func TestParseFields(t *testing.T) {
	t.Parallel()

	got, err := ParseFields(" case, URL ,case")
	require.NoError(t, err)
	assert.Equal(t, []Field{FieldCase, FieldURL}, got)

	got, err = ParseFields("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFields, got)

	_, err = ParseFields("case,officer")
	assert.Error(t, err)
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncateRunes("abc", 0))
	assert.Equal(t, "abc", truncateRunes("abc", 3))
	assert.Equal(t, "a…", truncateRunes("abc", 2))
	assert.Equal(t, "a", truncateRunes("abc", 1))
}
