package endpoint

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

// LoadFile reads an endpoint list in the bedrock_endpoints.conf JSON format.
func LoadFile(path string) ([]domain.EndpointRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoint file: %w", err)
	}
	return ParseRecords(data)
}

// ParseRecords decodes a JSON endpoint list.
func ParseRecords(data []byte) ([]domain.EndpointRecord, error) {
	var records []domain.EndpointRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse endpoint list: %w", err)
	}
	return records, nil
}
