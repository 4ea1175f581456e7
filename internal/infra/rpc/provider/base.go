package provider

import (
	"log/slog"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

// baseInvoker holds what every transport shares.
type baseInvoker struct {
	api     API
	modelID string
	apiKey  string
	logger  *slog.Logger
}

func newBaseInvoker(opts Options) baseInvoker {
	api := opts.API
	if api == "" {
		api = APIConverse
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return baseInvoker{
		api:     api,
		modelID: opts.ModelID,
		apiKey:  opts.APIKey,
		logger:  logger,
	}
}

// API returns the operation the invoker performs.
func (b *baseInvoker) API() API {
	return b.api
}

func (b *baseInvoker) modelFor(inv domain.Invocation) string {
	if inv.CrossRegionInference && inv.ProfilePrefix == "" {
		b.logger.Debug("Cross-region inference without profile prefix, using bare model id",
			"region", inv.Region,
			"model_id", b.modelID,
		)
	}
	return ModelIDFor(inv, b.modelID)
}

func (b *baseInvoker) newResponse(inv domain.Invocation, modelID string) *Response {
	return &Response{
		Region:  inv.Region,
		ModelID: modelID,
		API:     b.api,
	}
}
