package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

const maxErrorBody = 64 * 1024

// HTTPInvoker calls a regional Bedrock runtime style REST endpoint.
type HTTPInvoker struct {
	baseInvoker
	endpointTemplate string
	readTimeout      time.Duration
	httpClient       *http.Client
}

// NewHTTPInvoker creates a new HTTP inference collaborator.
func NewHTTPInvoker(opts Options) *HTTPInvoker {
	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &HTTPInvoker{
		baseInvoker:      newBaseInvoker(opts),
		endpointTemplate: opts.EndpointTemplate,
		readTimeout:      opts.ReadTimeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   opts.ConnectTimeout,
				ResponseHeaderTimeout: opts.ReadTimeout,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// Invoke performs one attempt against inv.Region.
func (p *HTTPInvoker) Invoke(ctx context.Context, inv domain.Invocation) (any, error) {
	modelID := p.modelFor(inv)

	body, err := encodePayload(inv.Payload)
	if err != nil {
		return nil, &domain.InvokeError{
			Region:  inv.Region,
			Message: err.Error(),
			Class:   domain.FailureNonRetryable,
			Err:     err,
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	endpoint := strings.TrimRight(RegionURL(p.endpointTemplate, inv.Region), "/") + p.path(modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.InvokeError{
			Region:  inv.Region,
			Message: fmt.Sprintf("create request: %v", err),
			Class:   domain.FailureNonRetryable,
			Err:     err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.api.IsStreaming() {
		req.Header.Set("Accept", "application/x-ndjson")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if inv.RequestID != "" {
		req.Header.Set("X-Request-Id", inv.RequestID)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &domain.InvokeError{
			Region:  inv.Region,
			Message: fmt.Sprintf("invoke: %v", err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body := io.Reader(resp.Body)
	if p.readTimeout > 0 {
		idle := newIdleReader(resp.Body, p.readTimeout, cancel)
		defer idle.stop()
		body = idle
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, p.responseError(inv.Region, resp.StatusCode, resp.Header, body)
	}

	out := p.newResponse(inv, modelID)

	if p.api.IsStreaming() {
		text, events, err := DecodeStream(inv.Region, p.api, body)
		out.Text = text
		out.Events = events
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &domain.InvokeError{
			Region:  inv.Region,
			Message: fmt.Sprintf("read response: %v", err),
			Err:     err,
		}
	}
	if !json.Valid(data) {
		return nil, &domain.InvokeError{
			Region:     inv.Region,
			StatusCode: resp.StatusCode,
			Message:    "response is not valid json",
		}
	}
	out.Body = data
	return out, nil
}

// Close cleans up resources.
func (p *HTTPInvoker) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *HTTPInvoker) path(modelID string) string {
	model := url.PathEscape(modelID)
	switch p.api {
	case APIConverseStream:
		return "/model/" + model + "/converse-stream"
	case APIInvokeModel:
		return "/model/" + model + "/invoke"
	case APIInvokeModelWithResponseStream:
		return "/model/" + model + "/invoke-with-response-stream"
	default:
		return "/model/" + model + "/converse"
	}
}

func (p *HTTPInvoker) responseError(region string, statusCode int, header http.Header, r io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))

	var body struct {
		Message  string `json:"message"`
		MessageU string `json:"Message"`
		Type     string `json:"__type"`
	}
	_ = json.Unmarshal(data, &body)

	code := header.Get("X-Amzn-Errortype")
	if code == "" {
		code = body.Type
	}
	// "ThrottlingException:http://internal.amazon.com/coral/..." or "ns#Code"
	if i := strings.IndexByte(code, ':'); i >= 0 {
		code = code[:i]
	}
	if i := strings.LastIndexByte(code, '#'); i >= 0 {
		code = code[i+1:]
	}

	msg := body.Message
	if msg == "" {
		msg = body.MessageU
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	return &domain.InvokeError{
		Region:     region,
		StatusCode: statusCode,
		Code:       code,
		Message:    msg,
	}
}

// idleReader cancels the request when a single read blocks longer than
// timeout. ResponseHeaderTimeout only covers the wait for headers.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.expired.Store(true)
		cancel()
	})
	ir.timer.Stop()
	return ir
}

func (ir *idleReader) Read(b []byte) (int, error) {
	ir.timer.Reset(ir.timeout)
	n, err := ir.r.Read(b)
	ir.timer.Stop()
	if err != nil && err != io.EOF && ir.expired.Load() {
		return n, fmt.Errorf("read timeout after %s: %w", ir.timeout, context.DeadlineExceeded)
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}
