// Package provider implements the inference collaborators the dispatcher
// invokes, one attempt per call.
//
// This package contains:
//   - HTTPInvoker: Bedrock runtime style REST calls with NDJSON streaming
//   - GRPCInvoker: unary gRPC calls carrying structpb payloads
//   - DecodeStream/ExtractText: content-only extraction from stream events
package provider

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

// API selects which inference operation an invoker performs.
type API string

const (
	APIConverse                      API = "converse"
	APIConverseStream                API = "converse_stream"
	APIInvokeModel                   API = "invoke_model"
	APIInvokeModelWithResponseStream API = "invoke_model_with_response_stream"
)

// ParseAPI converts a config or CLI string into an API.
func ParseAPI(s string) (API, error) {
	switch API(s) {
	case APIConverse, APIConverseStream, APIInvokeModel, APIInvokeModelWithResponseStream:
		return API(s), nil
	default:
		return "", fmt.Errorf("unknown api %q", s)
	}
}

// IsStreaming reports whether the API returns an event stream.
func (a API) IsStreaming() bool {
	return a == APIConverseStream || a == APIInvokeModelWithResponseStream
}

// Options configure an invoker.
type Options struct {
	API     API
	ModelID string

	// EndpointTemplate (HTTP) or Target (gRPC) with a {region} placeholder.
	EndpointTemplate string
	Target           string
	Method           string // gRPC full method name

	APIKey         string
	ReadTimeout    time.Duration
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// Response is what a successful attempt returns to the dispatcher.
type Response struct {
	Region  string          `json:"region"`
	ModelID string          `json:"model_id"`
	API     API             `json:"api"`
	Body    json.RawMessage `json:"body,omitempty"`   // non-streaming APIs
	Text    string          `json:"text,omitempty"`   // streaming APIs, content only
	Events  int             `json:"events,omitempty"` // stream events consumed
}

// ModelIDFor returns the model identifier to address for one attempt.
// With cross-region inference the profile prefix is prepended.
func ModelIDFor(inv domain.Invocation, modelID string) string {
	if !inv.CrossRegionInference || inv.ProfilePrefix == "" {
		return modelID
	}
	return inv.ProfilePrefix + "." + modelID
}

// RegionURL substitutes the region into an endpoint template.
func RegionURL(template, region string) string {
	return strings.ReplaceAll(template, "{region}", region)
}

// encodePayload turns the opaque payload into request bytes.
func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return data, nil
	}
}
