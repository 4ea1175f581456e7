package provider

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

// GRPCInvoker calls a regional inference gateway over gRPC.
// Requests and responses are google.protobuf.Struct messages so no
// generated client is needed.
type GRPCInvoker struct {
	baseInvoker
	target      string
	method      string
	readTimeout time.Duration
	dialOpts    []grpc.DialOption

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn // region -> conn
}

// NewGRPCInvoker creates a new gRPC inference collaborator. Extra dial
// options are appended after the transport credentials.
func NewGRPCInvoker(opts Options, extra ...grpc.DialOption) *GRPCInvoker {
	return &GRPCInvoker{
		baseInvoker: newBaseInvoker(opts),
		target:      opts.Target,
		method:      opts.Method,
		readTimeout: opts.ReadTimeout,
		dialOpts:    extra,
		conns:       make(map[string]*grpc.ClientConn),
	}
}

// Invoke performs one unary call against inv.Region.
func (p *GRPCInvoker) Invoke(ctx context.Context, inv domain.Invocation) (any, error) {
	modelID := p.modelFor(inv)

	req, err := p.buildRequest(inv, modelID)
	if err != nil {
		return nil, &domain.InvokeError{
			Region:  inv.Region,
			Message: err.Error(),
			Class:   domain.FailureNonRetryable,
			Err:     err,
		}
	}

	conn, err := p.conn(inv.Region)
	if err != nil {
		return nil, err
	}

	if p.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.readTimeout)
		defer cancel()
	}

	md := metadata.Pairs("x-request-id", inv.RequestID)
	if p.apiKey != "" {
		md.Append("authorization", "Bearer "+p.apiKey)
	}
	ctx = metadata.NewOutgoingContext(ctx, md)

	var resp structpb.Struct
	if err := conn.Invoke(ctx, p.method, req, &resp); err != nil {
		// Status errors are classified by code; keep them unwrapped.
		return nil, err
	}

	return p.decodeResponse(inv, modelID, &resp)
}

// Close closes every regional connection.
func (p *GRPCInvoker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for region, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", region, err)
		}
		delete(p.conns, region)
	}
	return firstErr
}

func (p *GRPCInvoker) conn(region string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[region]; ok {
		return conn, nil
	}

	target := RegionURL(p.target, region)
	var opts []grpc.DialOption

	// Check scheme
	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}
	opts = append(opts, p.dialOpts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, &domain.InvokeError{
			Region:  region,
			Message: fmt.Sprintf("failed to create grpc client for %s: %v", target, err),
			Class:   domain.FailureNonRetryable,
			Err:     err,
		}
	}
	p.conns[region] = conn
	return conn, nil
}

func (p *GRPCInvoker) buildRequest(inv domain.Invocation, modelID string) (*structpb.Struct, error) {
	raw, err := encodePayload(inv.Payload)
	if err != nil {
		return nil, err
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("payload must be a json object: %w", err)
	}

	return structpb.NewStruct(map[string]any{
		"model_id":   modelID,
		"api":        string(p.api),
		"region":     inv.Region,
		"request_id": inv.RequestID,
		"body":       body,
	})
}

func (p *GRPCInvoker) decodeResponse(inv domain.Invocation, modelID string, resp *structpb.Struct) (*Response, error) {
	out := p.newResponse(inv, modelID)
	fields := resp.AsMap()

	if !p.api.IsStreaming() {
		body, ok := fields["body"]
		if !ok {
			body = fields
		}
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode response: %w", err)
		}
		out.Body = data
		return out, nil
	}

	// Streaming APIs are answered with the collected events.
	events, _ := fields["events"].([]any)
	var sb strings.Builder
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode stream event: %w", err)
		}
		if excErr := streamException(inv.Region, raw); excErr != nil {
			return nil, excErr
		}
		text, err := ExtractText(p.api, raw)
		if err != nil {
			return nil, err
		}
		sb.WriteString(text)
	}
	out.Text = sb.String()
	out.Events = len(events)
	return out, nil
}
