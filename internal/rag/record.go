package rag

import (
	"errors"
	"fmt"
	"strings"
)

// Record is one case record returned by the index, ranked by Score.
type Record struct {
	// ID is the index's identifier for the record.
	ID string `json:"id"`

	// Score is the similarity score; higher is more relevant.
	Score float32 `json:"score"`

	// Metadata is the decoded case description.
	Metadata CaseMetadata `json:"metadata"`
}

// CaseMetadata is the descriptive payload stored alongside each vector.
type CaseMetadata struct {
	// Case is the case identifier or title, e.g. "19-060".
	Case string `json:"case"`
	// Date is the case date as stored, or "unknown date".
	Date string `json:"date"`
	// Tags are free-form labels such as "excessive force".
	Tags []string `json:"tags,omitempty"`
	// Excerpt is a short passage from the case file.
	Excerpt string `json:"excerpt,omitempty"`
	// LinkURL points at the source document.
	LinkURL string `json:"link_url,omitempty"`
	// LinkText is the display text for LinkURL.
	LinkText string `json:"link_text,omitempty"`
}

// unknownDate is the placeholder used when a record carries no date.
const unknownDate = "unknown date"

// ErrMalformedRecord is returned by [DecodeMetadata] for payloads that cannot
// describe a case. Index backends skip such records.
var ErrMalformedRecord = errors.New("rag: malformed record metadata")

// DecodeMetadata builds CaseMetadata from a generic payload map, applying the
// field fallbacks the case index was populated with:
//
//	case      ← case | title | record id
//	date      ← date | "unknown date"
//	excerpt   ← excerpt | text
//	link_url  ← link_url | url
//	link_text ← link_text | link_url
//
// tags may be a list or a comma-separated string. A nil or empty payload,
// or one whose known fields have the wrong type, is malformed.
func DecodeMetadata(id string, payload map[string]any) (CaseMetadata, error) {
	if len(payload) == 0 {
		return CaseMetadata{}, fmt.Errorf("%w: record %q has no metadata", ErrMalformedRecord, id)
	}

	var (
		md  CaseMetadata
		err error
	)
	str := func(keys ...string) string {
		for _, k := range keys {
			v, ok := payload[k]
			if !ok || v == nil {
				continue
			}
			s, isStr := v.(string)
			if !isStr {
				if err == nil {
					err = fmt.Errorf("%w: record %q field %q is %T, want string", ErrMalformedRecord, id, k, v)
				}
				continue
			}
			if s != "" {
				return s
			}
		}
		return ""
	}

	md.Case = str("case", "title")
	if md.Case == "" {
		md.Case = id
	}
	md.Date = str("date")
	if md.Date == "" {
		md.Date = unknownDate
	}
	md.Excerpt = str("excerpt", "text")
	md.LinkURL = str("link_url", "url")
	md.LinkText = str("link_text")
	if md.LinkText == "" {
		md.LinkText = md.LinkURL
	}

	tags, tagErr := decodeTags(payload["tags"])
	if tagErr != nil && err == nil {
		err = fmt.Errorf("%w: record %q: %v", ErrMalformedRecord, id, tagErr)
	}
	md.Tags = tags

	if err != nil {
		return CaseMetadata{}, err
	}
	return md, nil
}

// decodeTags accepts []any of strings, []string, or a comma-separated string.
func decodeTags(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return compact(t), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("tag is %T, want string", e)
			}
			out = append(out, s)
		}
		return compact(out), nil
	case string:
		return compact(strings.Split(t, ",")), nil
	default:
		return nil, fmt.Errorf("tags is %T, want list or string", v)
	}
}

// compact trims whitespace and drops empty entries.
func compact(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
