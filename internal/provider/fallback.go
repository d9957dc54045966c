package provider

import (
	"context"

	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

// FallbackClient wraps a primary LLM client with a secondary provider.
// If the primary fails, the request is retried once on the fallback.
type FallbackClient struct {
	primary  LLMClient
	fallback LLMClient
	log      *logging.Logger
}

// NewFallbackClient builds a fallback-enabled client. A nil fallback
// means only the primary is used.
func NewFallbackClient(primary, fallback LLMClient, log *logging.Logger) *FallbackClient {
	if primary == nil {
		panic("provider: primary llm client required")
	}
	if log == nil {
		log = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, log: log.Named("fallback")}
}

func (c *FallbackClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.log.Warn("primary model failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)
	if c.fallback == nil {
		return LLMResponse{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.log.Error("fallback model also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return LLMResponse{}, fallbackErr
	}

	c.log.Info("fallback model succeeded after primary failure")
	return fallbackResp, nil
}
