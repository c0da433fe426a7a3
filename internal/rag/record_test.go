package rag

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeMetadata_Fallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		payload map[string]any
		want    CaseMetadata
	}{
		{
			name: "all primary fields",
			id:   "p1",
			payload: map[string]any{
				"case": "19-060", "date": "2020-03-14", "tags": []any{"excessive force", "taser"},
				"excerpt": "Officer deployed a taser", "link_url": "https://example.org/19-060.pdf", "link_text": "Case 19-060",
			},
			want: CaseMetadata{
				Case: "19-060", Date: "2020-03-14", Tags: []string{"excessive force", "taser"},
				Excerpt: "Officer deployed a taser", LinkURL: "https://example.org/19-060.pdf", LinkText: "Case 19-060",
			},
		},
		{
			name:    "title text url fallbacks",
			id:      "p2",
			payload: map[string]any{"title": "Complaint 21-004", "text": "Body text", "url": "https://example.org/21-004"},
			want: CaseMetadata{
				Case: "Complaint 21-004", Date: "unknown date", Excerpt: "Body text",
				LinkURL: "https://example.org/21-004", LinkText: "https://example.org/21-004",
			},
		},
		{
			name:    "id fallback and comma tags",
			id:      "p3",
			payload: map[string]any{"tags": "neglect of duty, , untruthfulness"},
			want: CaseMetadata{
				Case: "p3", Date: "unknown date", Tags: []string{"neglect of duty", "untruthfulness"},
			},
		},
		{
			name:    "empty primary falls through",
			id:      "p4",
			payload: map[string]any{"case": "", "title": "T", "link_url": "", "url": "u"},
			want:    CaseMetadata{Case: "T", Date: "unknown date", LinkURL: "u", LinkText: "u"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeMetadata(tc.id, tc.payload)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("DecodeMetadata:\n got  %+v\n want %+v", got, tc.want)
			}
		})
	}
}

func TestDecodeMetadata_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"nil payload", nil},
		{"empty payload", map[string]any{}},
		{"case not a string", map[string]any{"case": 42.0}},
		{"tags wrong type", map[string]any{"case": "x", "tags": 3.0}},
		{"tag element wrong type", map[string]any{"case": "x", "tags": []any{"a", true}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeMetadata("bad", tc.payload)
			if !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}
