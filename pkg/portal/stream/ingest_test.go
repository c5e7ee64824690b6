package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chunkedReader returns its segments one Read call at a time, simulating
// arbitrary network packet boundaries.
type chunkedReader struct {
	segments []string
	index    int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.index >= len(r.segments) {
		return 0, fmt.Errorf("unexpected read past final segment")
	}
	n := copy(p, r.segments[r.index])
	r.index++
	return n, nil
}

func newTestClient() *Client {
	return NewClient("http://unused", nil, zap.NewNop())
}

func consumeSegments(t *testing.T, segments ...string) *State {
	t.Helper()
	state := &State{}
	err := newTestClient().consume(context.Background(), &chunkedReader{segments: segments}, state, Handler{})
	require.NoError(t, err)
	return state
}

func TestConsumeSchoolsThenChunksThenComplete(t *testing.T) {
	state := consumeSegments(t,
		`data: {"type":"schools_data","schools_data":[{"name":"State University","city":"Springfield"},{"name":"Tech College"}]}`+"\n",
		`data: {"type":"ai_chunk","text":"Hello, "}`+"\n",
		`data: {"type":"ai_chunk","text":"world!"}`+"\n",
		`data: {"type":"complete","comparison_id":"c1"}`+"\n",
	)

	require.Len(t, state.Schools, 2)
	assert.Equal(t, "State University", state.Schools[0].Name)
	assert.Equal(t, "Springfield", state.Schools[0].City)
	assert.Equal(t, "Hello, world!", state.Report)
	assert.Equal(t, "c1", state.ComparisonID)
	assert.True(t, state.Done)
}

func TestConsumeSecondSchoolsFrameReplacesList(t *testing.T) {
	// Each schools frame carries the complete list; a refreshed frame must
	// not duplicate records delivered earlier.
	state := consumeSegments(t,
		`data: {"type":"schools_data","schools_data":[{"name":"State University"}]}`+"\n",
		`data: {"type":"schools_data","schools_data":[{"name":"State University"},{"name":"Tech College"}]}`+"\n",
		`data: {"type":"complete","comparison_id":"c1"}`+"\n",
	)

	require.Len(t, state.Schools, 2)
	assert.Equal(t, "State University", state.Schools[0].Name)
	assert.Equal(t, "Tech College", state.Schools[1].Name)
}

func TestConsumeFrameSplitAcrossReads(t *testing.T) {
	state := consumeSegments(t,
		`data: {"type":"ai_chunk","te`,
		`xt":"split frame"}`+"\n",
		`data: {"type":"complete","comparison_id":"c1"}`+"\n",
	)
	assert.Equal(t, "split frame", state.Report)
	assert.True(t, state.Done)
}

func TestConsumeLegacyKeyVariants(t *testing.T) {
	// Older servers used "data" for school payloads and "chunk" for text.
	state := consumeSegments(t,
		`data: {"type":"schools_data","data":[{"name":"Legacy U"}]}`+"\n",
		`data: {"type":"ai_chunk","chunk":"legacy text"}`+"\n",
		`data: {"type":"complete"}`+"\n",
	)
	require.Len(t, state.Schools, 1)
	assert.Equal(t, "Legacy U", state.Schools[0].Name)
	assert.Equal(t, "legacy text", state.Report)
	assert.True(t, state.Done)
}

func TestConsumeMalformedFrameSkippedWithoutLosingProgress(t *testing.T) {
	state := consumeSegments(t,
		`data: {"type":"ai_chunk","text":"kept "}`+"\n",
		`data: {"type":"ai_chunk","text": not json`+"\n",
		`data: {"type":"ai_chunk","text":"and kept"}`+"\n",
		`data: {"type":"complete","comparison_id":"c1"}`+"\n",
	)
	assert.Equal(t, "kept and kept", state.Report)
	assert.True(t, state.Done)
}

func TestConsumeUnknownFrameTypeIgnored(t *testing.T) {
	state := consumeSegments(t,
		`data: {"type":"heartbeat"}`+"\n",
		`data: {"type":"ai_chunk","text":"content"}`+"\n",
		`data: {"type":"complete"}`+"\n",
	)
	assert.Equal(t, "content", state.Report)
	assert.True(t, state.Done)
}

func TestConsumeEOFFinalizesAsIs(t *testing.T) {
	state := &State{}
	r := strings.NewReader(
		`data: {"type":"schools_data","schools_data":[{"name":"Partial U"}]}` + "\n" +
			`data: {"type":"ai_chunk","text":"trunca`,
	)
	err := newTestClient().consume(context.Background(), r, state, Handler{})
	require.NoError(t, err)

	// The dangling partial line is dropped as malformed; everything before
	// it survives, and Done stays false.
	require.Len(t, state.Schools, 1)
	assert.False(t, state.Done)
}

func TestConsumeStopsAtComplete(t *testing.T) {
	// Nothing is read past the terminating frame; the reader would fail if
	// another Read happened.
	state := &State{}
	err := newTestClient().consume(context.Background(), &chunkedReader{segments: []string{
		`data: {"type":"complete","comparison_id":"c1"}` + "\n",
	}}, state, Handler{})
	require.NoError(t, err)
	assert.True(t, state.Done)
}

func TestConsumeHandlerSeesProgressiveState(t *testing.T) {
	var reports []string
	state := &State{}
	err := newTestClient().consume(context.Background(), strings.NewReader(
		`data: {"type":"ai_chunk","text":"a"}`+"\n"+
			`data: {"type":"ai_chunk","text":"b"}`+"\n"+
			`data: {"type":"complete"}`+"\n",
	), state, Handler{OnUpdate: func(s *State) {
		reports = append(reports, s.Report)
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "ab", "ab"}, reports)
}

func TestCompareTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zap.NewNop())
	state, err := client.Compare(context.Background(), "at", CompareRequest{Schools: []string{"A", "B"}}, Handler{})
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusForbidden, transportErr.StatusCode)
	assert.NotNil(t, state)
	assert.False(t, state.Done)
}

func TestCompareEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/compare", r.URL.Path)
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"schools_data","schools_data":[{"name":"State University"}]}`+"\n")
		fmt.Fprint(w, `data: {"type":"ai_chunk","text":"report text"}`+"\n")
		fmt.Fprint(w, `data: {"type":"complete","comparison_id":"c9"}`+"\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zap.NewNop())
	state, err := client.Compare(context.Background(), "at", CompareRequest{Schools: []string{"State University", "Tech College"}}, Handler{})
	require.NoError(t, err)
	require.Len(t, state.Schools, 1)
	assert.Equal(t, "report text", state.Report)
	assert.Equal(t, "c9", state.ComparisonID)
	assert.True(t, state.Done)
}

func TestCompareContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"ai_chunk","text":"before cancel"}`+"\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	client := NewClient(server.URL, nil, zap.NewNop())

	var state *State
	var err error
	go func() {
		state, err = client.Compare(ctx, "at", CompareRequest{Schools: []string{"A", "B"}}, Handler{
			OnUpdate: func(*State) { cancel() },
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("compare did not return after cancellation")
	}
	require.Error(t, err)
	assert.NotNil(t, state)
	assert.Equal(t, "before cancel", state.Report)
}
