package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/GPTx-global/gora/x/gora/types"
)

// MaxBodySize caps how much of a source response is read.
const MaxBodySize = 1 << 20

// Result is the preview of one URL source.
type Result struct {
	Index     int    `json:"index"`
	URL       string `json:"url"`
	Raw       string `json:"raw,omitempty"`
	Value     string `json:"value,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (r Result) Failed() bool {
	return r.Error != ""
}

// Executor fetches a URL source and evaluates its expressions the way a
// responder would, without signing or aggregating anything.
type Executor struct {
	client    *http.Client
	userAgent string
	now       func() time.Time
}

func NewExecutor(timeout time.Duration, userAgent string) *Executor {
	transport := new(http.Transport)
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second

	client := new(http.Client)
	client.Timeout = timeout
	client.Transport = transport

	return &Executor{client: client, userAgent: userAgent, now: time.Now}
}

// WithClient swaps the HTTP client, mostly for tests.
func (e *Executor) WithClient(client *http.Client) *Executor {
	e.client = client
	return e
}

// Execute previews one source. Failures are reported in the result.
func (e *Executor) Execute(ctx context.Context, index int, src types.SourceSpecURL) Result {
	res := Result{Index: index, URL: string(src.URL)}

	body, err := e.fetch(ctx, string(src.URL))
	if err != nil {
		res.Error = err.Error()
		return res
	}

	raw, err := Extract(body, string(src.ValueExpr))
	if err != nil {
		res.Error = fmt.Sprintf("value_expr: %s", err)
		return res
	}
	res.Raw = raw

	if res.Value, err = FormatValue(raw, src.ValueType, src.RoundTo); err != nil {
		res.Error = fmt.Sprintf("value_type: %s", err)
		return res
	}

	if len(src.TimestampExpr) == 0 {
		return res
	}

	ts, err := Extract(body, string(src.TimestampExpr))
	if err != nil {
		res.Error = fmt.Sprintf("timestamp_expr: %s", err)
		return res
	}
	if res.Timestamp, err = cast.ToInt64E(strings.TrimSpace(ts)); err != nil {
		res.Error = fmt.Sprintf("timestamp_expr: not a unix time: %q", ts)
		return res
	}

	if src.MaxAge > 0 {
		age := e.now().Unix() - res.Timestamp
		if age > int64(src.MaxAge) {
			res.Error = fmt.Sprintf("value is %ds old, max_age is %ds", age, src.MaxAge)
		}
	}

	return res
}

func (e *Executor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	res, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
