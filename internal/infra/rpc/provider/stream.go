package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

const maxEventSize = 1 << 20

// streamEvent covers both converse stream events and invoke-model chunks.
type streamEvent struct {
	ContentBlockDelta *struct {
		Delta struct {
			Text string `json:"text"`
		} `json:"delta"`
	} `json:"contentBlockDelta"`
	Chunk *struct {
		Bytes []byte `json:"bytes"` // base64 on the wire
	} `json:"chunk"`
	Delta *struct {
		Text string `json:"text"`
	} `json:"delta"`
}

// DecodeStream reads newline-delimited JSON events and concatenates their
// text content. An exception event ends the stream with an *InvokeError.
func DecodeStream(region string, api API, r io.Reader) (text string, events int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var sb strings.Builder
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		events++

		if excErr := streamException(region, line); excErr != nil {
			return sb.String(), events, excErr
		}

		chunk, err := ExtractText(api, line)
		if err != nil {
			return sb.String(), events, err
		}
		sb.WriteString(chunk)
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), events, fmt.Errorf("read stream: %w", err)
	}

	return sb.String(), events, nil
}

// ExtractText returns the text carried by a single stream event, or "" for
// events without content (metadata, message start/stop).
func ExtractText(api API, raw []byte) (string, error) {
	var ev streamEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", fmt.Errorf("parse stream event: %w", err)
	}

	switch api {
	case APIConverseStream:
		if ev.ContentBlockDelta != nil {
			return ev.ContentBlockDelta.Delta.Text, nil
		}
	case APIInvokeModelWithResponseStream:
		if ev.Chunk != nil {
			var inner streamEvent
			if err := json.Unmarshal(ev.Chunk.Bytes, &inner); err != nil {
				return "", fmt.Errorf("parse stream chunk: %w", err)
			}
			if inner.Delta != nil {
				return inner.Delta.Text, nil
			}
			return "", nil
		}
		if ev.Delta != nil {
			return ev.Delta.Text, nil
		}
	}
	return "", nil
}

// streamException detects events like {"throttlingException": {"message": ...}}.
func streamException(region string, raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}

	for key, value := range fields {
		if !strings.HasSuffix(key, "Exception") {
			continue
		}
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(value, &body)
		return &domain.InvokeError{
			Region:  region,
			Code:    strings.ToUpper(key[:1]) + key[1:],
			Message: body.Message,
		}
	}
	return nil
}
