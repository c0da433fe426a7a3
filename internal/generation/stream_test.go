package generation

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingBody records whether Close was called.
type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestChunks(t *testing.T) {
	t.Parallel()

	body := &trackingBody{Reader: strings.NewReader(
		`{"response":"a","done":false}` + "\n\n" +
			`  {"response":"b","done":false}  ` + "\n" +
			`{"response":"","done":true}`,
	)}

	var got []Chunk
	for c, err := range Chunks(body) {
		require.NoError(t, err)
		got = append(got, c)
	}

	assert.Equal(t, []Chunk{{Response: "a"}, {Response: "b"}, {Done: true}}, got)
	assert.True(t, body.closed)
}

func TestChunksEarlyStopClosesBody(t *testing.T) {
	t.Parallel()

	body := &trackingBody{Reader: strings.NewReader(strings.Repeat(`{"response":"x"}`+"\n", 100))}

	n := 0
	for range Chunks(body) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
	assert.True(t, body.closed)
}

func TestChunksMalformed(t *testing.T) {
	t.Parallel()

	body := &trackingBody{Reader: strings.NewReader(`{"response":"a"}` + "\nnot json\n" + `{"response":"b"}`)}

	var texts []string
	var errs []error
	for c, err := range Chunks(body) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		texts = append(texts, c.Response)
	}
	assert.Equal(t, []string{"a"}, texts)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], errMalformedChunk))
	assert.True(t, body.closed)
}

// failingReader returns its data, then err.
type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestChunksReadError(t *testing.T) {
	t.Parallel()

	reset := errors.New("connection reset by peer")
	body := &trackingBody{Reader: &failingReader{data: `{"response":"a"}` + "\n", err: reset}}

	var gotErr error
	n := 0
	for _, err := range Chunks(body) {
		if err != nil {
			gotErr = err
			continue
		}
		n++
	}
	assert.Equal(t, 1, n)
	require.ErrorIs(t, gotErr, reset)
	assert.False(t, errors.Is(gotErr, errMalformedChunk))
}
