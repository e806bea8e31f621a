package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sciphi-chat/pkg/api"

	"github.com/go-resty/resty/v2"
)

const completionsEndpoint = "/api/completions"

// CompletionsClient calls a remote completions endpoint. It lets a workspace
// controller use a completions service deployed separately from the workspace API.
type CompletionsClient struct {
	client  *resty.Client
	timeout time.Duration
}

func NewCompletionsClient(baseURL string, timeout time.Duration) *CompletionsClient {
	return &CompletionsClient{
		client:  resty.New().SetBaseURL(strings.TrimSuffix(baseURL, "/")),
		timeout: timeout,
	}
}

func (c *CompletionsClient) Complete(ctx context.Context, req api.CompletionRequest) (api.CompletionResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var out api.CompletionResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(req).
		SetResult(&out).
		Post(completionsEndpoint)
	if err != nil {
		return api.CompletionResponse{}, fmt.Errorf("error calling completions endpoint: %w", err)
	}

	if !res.IsSuccess() {
		slog.Error("completions endpoint returned error", "status_code", res.StatusCode(), "body", res.String())
		return api.CompletionResponse{}, fmt.Errorf("completions endpoint returned %d: %s", res.StatusCode(), strings.TrimSpace(res.String()))
	}

	if out.Context == nil {
		out.Context = []api.ContextItem{}
	}
	return out, nil
}
