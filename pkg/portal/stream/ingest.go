// Package stream consumes the comparison endpoint's newline-delimited
// frame stream and accumulates it into a progressively updated result.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const framePrefix = "data: "

// School is the lenient client-side view of a school record. Fields the
// server omits simply stay zero.
type School struct {
	Name          string   `json:"name"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	AdmissionRate *float64 `json:"admission_rate"`
	TuitionIn     *float64 `json:"tuition_in_state"`
	TuitionOut    *float64 `json:"tuition_out_of_state"`
	StudentSize   *int     `json:"student_size"`
	AvgEarnings   *float64 `json:"avg_earnings"`
}

// State is the accumulated result of a comparison stream. Schools and the
// report text grow as frames arrive; Done flips when the server signals
// completion. A stream that dies mid-way leaves State holding everything
// received so far.
type State struct {
	Schools      []School
	Report       string
	ComparisonID string
	Done         bool

	report strings.Builder
}

func (s *State) appendChunk(text string) {
	s.report.WriteString(text)
	s.Report = s.report.String()
}

// TransportError reports a failed connection or a non-2xx response. The
// partial State accumulated before the failure remains readable.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream transport: %v", e.Err)
	}
	return fmt.Sprintf("stream transport: unexpected status %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// frame is the tagged union the server emits. Older servers used "data"
// and "chunk"; current ones use "schools_data" and "text". Both are
// accepted.
type frame struct {
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data"`
	SchoolsData  json.RawMessage `json:"schools_data"`
	Text         string          `json:"text"`
	Chunk        string          `json:"chunk"`
	ComparisonID string          `json:"comparison_id"`
}

// Handler observes the stream as it accumulates. OnUpdate fires after
// every applied frame with the current state.
type Handler struct {
	OnUpdate func(state *State)
}

// Client runs comparison requests against the portal backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a comparison stream client.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		// No overall timeout: comparison streams are long-lived. Callers
		// bound them with the context instead.
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient, logger: logger}
}

// CompareRequest is the body of a comparison stream request.
type CompareRequest struct {
	Schools []string `json:"schools"`
	Weights struct {
		AdmissionRate float64 `json:"admission_rate"`
		Cost          float64 `json:"cost"`
		Size          float64 `json:"size"`
		Earnings      float64 `json:"earnings"`
	} `json:"weights"`
}

// Compare opens the stream and consumes it to completion, cancellation,
// or transport failure. The returned State always reflects everything
// successfully received, even when err is non-nil.
func (c *Client) Compare(ctx context.Context, accessToken string, req CompareRequest, handler Handler) (*State, error) {
	state := &State{}

	payload, err := json.Marshal(req)
	if err != nil {
		return state, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compare", bytes.NewReader(payload))
	if err != nil {
		return state, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return state, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return state, &TransportError{StatusCode: resp.StatusCode}
	}

	return state, c.consume(ctx, resp.Body, state, handler)
}

// consume reads newline-delimited frames, carrying partial trailing bytes
// across reads. Malformed frames are skipped with a diagnostic; prior
// accumulation is never discarded.
func (c *Client) consume(ctx context.Context, r io.Reader, state *State, handler Handler) error {
	var carry []byte
	buf := make([]byte, 4096)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)
			for {
				idx := bytes.IndexByte(carry, '\n')
				if idx < 0 {
					break
				}
				line := carry[:idx]
				carry = carry[idx+1:]
				if done := c.applyLine(line, state, handler); done {
					return nil
				}
			}
		}
		if readErr != nil {
			if len(carry) > 0 {
				if done := c.applyLine(carry, state, handler); done {
					return nil
				}
			}
			if readErr == io.EOF {
				return nil
			}
			return &TransportError{Err: readErr}
		}
	}
}

// applyLine parses one frame line and folds it into the state. Returns
// true when the stream is complete.
func (c *Client) applyLine(line []byte, state *State, handler Handler) bool {
	line = bytes.TrimRight(line, "\r")
	text := bytes.TrimSpace(line)
	if len(text) == 0 {
		return false
	}
	if !bytes.HasPrefix(text, []byte(framePrefix)) {
		c.logger.Debug("skipping non-frame line", zap.ByteString("line", truncate(text, 120)))
		return false
	}
	body := text[len(framePrefix):]

	var f frame
	if err := json.Unmarshal(body, &f); err != nil {
		c.logger.Warn("skipping malformed frame",
			zap.Error(err),
			zap.ByteString("frame", truncate(body, 200)))
		return false
	}

	switch f.Type {
	case "schools_data":
		raw := f.SchoolsData
		if len(raw) == 0 {
			raw = f.Data
		}
		var schools []School
		if err := json.Unmarshal(raw, &schools); err != nil {
			c.logger.Warn("skipping unreadable schools frame", zap.Error(err))
			return false
		}
		// A schools frame carries the full entity list; a later frame
		// supersedes the earlier one rather than extending it.
		state.Schools = schools
	case "ai_chunk":
		chunk := f.Text
		if chunk == "" {
			chunk = f.Chunk
		}
		state.appendChunk(chunk)
	case "complete":
		state.ComparisonID = f.ComparisonID
		state.Done = true
	default:
		c.logger.Debug("ignoring unknown frame type", zap.String("type", f.Type))
		return false
	}

	if handler.OnUpdate != nil {
		handler.OnUpdate(state)
	}
	return state.Done
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
