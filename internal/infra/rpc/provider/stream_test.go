package provider

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

func TestExtractText_InvokeModelChunk(t *testing.T) {
	inner := `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`
	event := `{"chunk":{"bytes":"` + base64.StdEncoding.EncodeToString([]byte(inner)) + `"}}`

	got, err := ExtractText(APIInvokeModelWithResponseStream, []byte(event))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hi" {
		t.Errorf("expected Hi, got %q", got)
	}

	// message_start chunks carry no text.
	start := `{"chunk":{"bytes":"` + base64.StdEncoding.EncodeToString([]byte(`{"type":"message_start"}`)) + `"}}`
	if got, _ := ExtractText(APIInvokeModelWithResponseStream, []byte(start)); got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
}

func TestExtractText_IgnoresOtherAPIShapes(t *testing.T) {
	event := []byte(`{"contentBlockDelta":{"delta":{"text":"x"}}}`)
	if got, _ := ExtractText(APIInvokeModelWithResponseStream, event); got != "" {
		t.Errorf("converse event should not be read as invoke-model chunk, got %q", got)
	}
	if got, _ := ExtractText(APIConverseStream, event); got != "x" {
		t.Errorf("expected x, got %q", got)
	}
}

func TestDecodeStream(t *testing.T) {
	input := strings.Join([]string{
		`{"delta":{"text":"a"}}`,
		``,
		`{"delta":{"text":"b"}}`,
	}, "\n")

	text, events, err := DecodeStream("us-east-1", APIInvokeModelWithResponseStream, strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ab" || events != 2 {
		t.Errorf("unexpected text=%q events=%d", text, events)
	}

	if _, _, err := DecodeStream("us-east-1", APIConverseStream, strings.NewReader("{oops\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestModelIDFor(t *testing.T) {
	inv := domain.Invocation{ProfilePrefix: "eu", CrossRegionInference: true}
	if got := ModelIDFor(inv, "m"); got != "eu.m" {
		t.Errorf("expected eu.m, got %s", got)
	}
	inv.CrossRegionInference = false
	if got := ModelIDFor(inv, "m"); got != "m" {
		t.Errorf("expected m, got %s", got)
	}
	inv = domain.Invocation{CrossRegionInference: true}
	if got := ModelIDFor(inv, "m"); got != "m" {
		t.Errorf("empty prefix should fall back to bare id, got %s", got)
	}
}

func TestParseAPI(t *testing.T) {
	for _, s := range []string{"converse", "converse_stream", "invoke_model", "invoke_model_with_response_stream"} {
		if _, err := ParseAPI(s); err != nil {
			t.Errorf("ParseAPI(%q): %v", s, err)
		}
	}
	if _, err := ParseAPI("chat"); err == nil {
		t.Error("expected error for unknown api")
	}
	if !APIConverseStream.IsStreaming() || APIInvokeModel.IsStreaming() {
		t.Error("unexpected streaming flags")
	}
}
