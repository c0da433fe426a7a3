package generation

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

// maxChunkLine bounds a single NDJSON line.
const maxChunkLine = 1 << 20

// errMalformedChunk marks a stream line that is not a JSON chunk.
var errMalformedChunk = errors.New("generation: malformed stream chunk")

// Chunk is one line of an Ollama-style streamed response.
type Chunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Chunks decodes newline-delimited JSON chunks from body. The sequence is
// lazy: each line is read when the consumer asks for it. body is closed when
// the sequence ends or the consumer stops early. Blank lines are skipped.
// A read or decode failure is yielded once as the error and ends the sequence.
func Chunks(body io.ReadCloser) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		defer body.Close()

		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), maxChunkLine)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var c Chunk
			if err := json.Unmarshal(line, &c); err != nil {
				yield(Chunk{}, fmt.Errorf("%w: %v", errMalformedChunk, err))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(Chunk{}, fmt.Errorf("generation: reading stream: %w", err))
		}
	}
}
