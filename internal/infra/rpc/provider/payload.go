package provider

import (
	"encoding/json"
	"strings"
)

// InferenceConfig holds the converse inference parameters.
type InferenceConfig struct {
	MaxTokens     int      `json:"maxTokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

// anthropicVersion is required by the invoke-model message format.
const anthropicVersion = "bedrock-2023-05-31"

// NewPromptPayload builds a single-turn request body for api.
// Converse APIs use the converse message shape; invoke-model APIs use the
// Anthropic messages shape.
func NewPromptPayload(api API, prompt, system string, cfg InferenceConfig) map[string]any {
	switch api {
	case APIInvokeModel, APIInvokeModelWithResponseStream:
		maxTokens := cfg.MaxTokens
		if maxTokens == 0 {
			maxTokens = 256
		}
		body := map[string]any{
			"anthropic_version": anthropicVersion,
			"max_tokens":        maxTokens,
			"system":            system,
			"messages": []any{
				map[string]any{
					"role": "user",
					"content": []any{
						map[string]any{"type": "text", "text": prompt},
					},
				},
			},
		}
		if cfg.Temperature != nil {
			body["temperature"] = *cfg.Temperature
		}
		if len(cfg.StopSequences) > 0 {
			body["stop_sequences"] = cfg.StopSequences
		}
		return body

	default:
		body := map[string]any{
			"messages": []any{
				map[string]any{
					"role": "user",
					"content": []any{
						map[string]any{"text": prompt},
					},
				},
			},
		}
		if system != "" {
			body["system"] = []any{map[string]any{"text": system}}
		}
		if cfg.MaxTokens != 0 || cfg.Temperature != nil || cfg.TopP != nil || len(cfg.StopSequences) > 0 {
			body["inferenceConfig"] = cfg
		}
		return body
	}
}

// ExtractContent returns the text content of a response. Streaming
// responses already carry it; non-streaming bodies are searched for the
// converse output message or the invoke-model content blocks.
func ExtractContent(resp *Response) string {
	if resp == nil {
		return ""
	}
	if resp.API.IsStreaming() {
		return resp.Text
	}

	var body struct {
		Output struct {
			Message struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		} `json:"output"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return ""
	}

	var sb strings.Builder
	for _, c := range body.Output.Message.Content {
		sb.WriteString(c.Text)
	}
	for _, c := range body.Content {
		sb.WriteString(c.Text)
	}
	return sb.String()
}
