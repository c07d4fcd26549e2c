package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/session"
	"github.com/gojue/ecaptureQ/internal/sink"
)

// HTTPTransport implements PacketsTransport against the REST gateway.
type HTTPTransport struct {
	base   string
	client *http.Client
}

var _ PacketsTransport = (*HTTPTransport)(nil)

// NewHTTPTransport talks to the REST gateway at baseURL. A nil client uses
// http.DefaultClient.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{base: strings.TrimRight(baseURL, "/"), client: client}
}

// HTTPError is a non-2xx answer from the gateway.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Do sends a request and returns the response when its status is 2xx.
func (t *HTTPTransport) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return nil, &HTTPError{Status: resp.StatusCode, Message: e.Error}
	}
	return resp, nil
}

func (t *HTTPTransport) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := t.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (t *HTTPTransport) Query(ctx context.Context, q string, cursor *uint64) (QueryResult, error) {
	var out QueryResult
	body := map[string]any{"q": q}
	if cursor != nil {
		body["cursor"] = *cursor
	}
	err := t.doJSON(ctx, http.MethodPost, "/v1/query", body, &out)
	return out, err
}

func (t *HTTPTransport) Get(ctx context.Context, index uint64) (packet.Record, error) {
	var out packet.Record
	err := t.doJSON(ctx, http.MethodGet, "/v1/packets/"+strconv.FormatUint(index, 10), nil, &out)
	return out, err
}

// Subscribe reads the SSE feed until ctx ends or the server closes it.
func (t *HTTPTransport) Subscribe(ctx context.Context, req SubscribeRequest, onMessage func(sink.Message) error) error {
	v := url.Values{}
	if req.Filter != nil {
		v.Set("filter", *req.Filter)
	}
	if req.Cursor != nil {
		v.Set("cursor", strconv.FormatUint(*req.Cursor, 10))
	}
	if req.Topic != "" {
		v.Set("topic", req.Topic)
	}
	path := "/v1/packets/stream"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	resp, err := t.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var msg sink.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return err
		}
		if err := onMessage(msg); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

func (t *HTTPTransport) StartCapture(ctx context.Context) (session.Status, error) {
	var st session.Status
	err := t.doJSON(ctx, http.MethodPost, "/v1/capture/start", nil, &st)
	return st, err
}

func (t *HTTPTransport) StopCapture(ctx context.Context) (session.Status, error) {
	var st session.Status
	err := t.doJSON(ctx, http.MethodPost, "/v1/capture/stop", nil, &st)
	return st, err
}

func (t *HTTPTransport) CaptureStatus(ctx context.Context) (session.Status, error) {
	var st session.Status
	err := t.doJSON(ctx, http.MethodGet, "/v1/capture/status", nil, &st)
	return st, err
}

func (t *HTTPTransport) SetFilter(ctx context.Context, filter string) (session.Status, error) {
	var st session.Status
	err := t.doJSON(ctx, http.MethodPut, "/v1/filter", map[string]string{"filter": filter}, &st)
	return st, err
}
