// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package llm wraps the OpenAI-compatible inference API behind a small client.

Responsibilities:

  - Routing: Maps a model tier (primary / economy) to the configured model.
  - Backpressure: A weighted semaphore caps in-flight upstream calls.
  - Resilience: Transient failures (429, 5xx, network) retry with
    exponential backoff and jitter; everything else fails fast.
  - Accounting: Every reply carries token usage and computed cost.
*/
package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/sync/semaphore"

	"github.com/taibuivan/flowreader/internal/ai/policy"
	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/constants"
)

// # Request / Response Model

// Role mirrors the chat roles we exchange with the model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation handed to the model.
type Message struct {
	Role    Role
	Content string
}

// ChatRequest describes one completion call.
type ChatRequest struct {
	Tier            policy.Tier
	System          string
	Messages        []Message
	MaxOutputTokens int
}

// Usage is the token and cost accounting for one upstream call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	CostMicros       int64
}

// TokenFunc receives each streamed content delta. Returning an error aborts
// the stream.
type TokenFunc func(token string) error

// # Client

// Options configures the client.
type Options struct {
	APIKey         string
	BaseURL        string
	PrimaryModel   string
	EconomyModel   string
	EmbeddingModel string
	Dimensions     int
	Concurrency    int64

	// Cost rates in micro-dollars per million tokens, per tier.
	PrimaryInputCost   int64
	PrimaryOutputCost  int64
	EconomyInputCost   int64
	EconomyOutputCost  int64
	EmbeddingTokenCost int64
}

// Client is the shared inference client. Safe for concurrent use.
type Client struct {
	api  openai.Client
	opts Options
	sem  *semaphore.Weighted
}

// New constructs a Client from configuration.
func New(opts Options) *Client {
	requestOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(opts.BaseURL))
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	return &Client{
		api:  openai.NewClient(requestOpts...),
		opts: opts,
		sem:  semaphore.NewWeighted(opts.Concurrency),
	}
}

// modelFor resolves a tier to the configured model name.
func (client *Client) modelFor(tier policy.Tier) string {
	if tier == policy.TierEconomy {
		return client.opts.EconomyModel
	}
	return client.opts.PrimaryModel
}

func (client *Client) chatParams(request ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(request.Messages)+1)
	if request.System != "" {
		messages = append(messages, openai.SystemMessage(request.System))
	}
	for _, message := range request.Messages {
		switch message.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(message.Content))
		default:
			messages = append(messages, openai.UserMessage(message.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(client.modelFor(request.Tier)),
		Messages: messages,
	}
	if request.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxOutputTokens))
	}
	return params
}

/*
Complete runs a non-streaming chat completion.

Parameters:
  - ctx: context.Context (cancellation aborts the upstream call)
  - request: ChatRequest

Returns:
  - string: The full assistant reply
  - Usage: Token and cost accounting
  - error: apperr.Upstream after retries are exhausted
*/
func (client *Client) Complete(ctx context.Context, request ChatRequest) (string, Usage, error) {
	if err := client.sem.Acquire(ctx, 1); err != nil {
		return "", Usage{}, err
	}
	defer client.sem.Release(1)

	params := client.chatParams(request)

	var reply string
	var usage Usage
	err := client.withRetry(ctx, func() error {
		completion, err := client.api.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(completion.Choices) == 0 {
			return fmt.Errorf("llm: completion returned no choices")
		}
		reply = completion.Choices[0].Message.Content
		usage = client.chatUsage(request.Tier, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
		return nil
	})
	if err != nil {
		return "", Usage{}, err
	}
	return reply, usage, nil
}

/*
Stream runs a streaming chat completion, invoking onToken per content delta.

Description: Retries only apply before the first token reaches the caller;
once content has been forwarded the stream cannot be transparently replayed,
so a mid-stream failure surfaces as an error with the partial text returned.

Returns:
  - string: The accumulated reply (possibly partial on error)
  - Usage: Accounting from the final stream chunk
  - error: Mid-stream or setup failure
*/
func (client *Client) Stream(ctx context.Context, request ChatRequest, onToken TokenFunc) (string, Usage, error) {
	if err := client.sem.Acquire(ctx, 1); err != nil {
		return "", Usage{}, err
	}
	defer client.sem.Release(1)

	params := client.chatParams(request)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	var accumulated string
	var usage Usage
	forwarded := false

	attempt := func() error {
		stream := client.api.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 {
				delta := chunk.Choices[0].Delta.Content
				if delta != "" {
					forwarded = true
					accumulated += delta
					if err := onToken(delta); err != nil {
						return err
					}
				}
			}
			if chunk.Usage.TotalTokens > 0 {
				usage = client.chatUsage(request.Tier, chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
			}
		}
		return stream.Err()
	}

	err := client.withRetry(ctx, func() error {
		streamErr := attempt()
		if streamErr != nil && forwarded {
			// Content already reached the caller; do not replay.
			return &permanentError{streamErr}
		}
		return streamErr
	})
	return accumulated, usage, err
}

/*
Embed computes embeddings for a batch of texts.

Parameters:
  - ctx: context.Context
  - texts: []string (at most the configured batch size)

Returns:
  - [][]float32: One vector per input, in input order
  - Usage: Token and cost accounting
  - error: apperr.Upstream after retries are exhausted
*/
func (client *Client) Embed(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	if len(texts) == 0 {
		return nil, Usage{}, nil
	}

	if err := client.sem.Acquire(ctx, 1); err != nil {
		return nil, Usage{}, err
	}
	defer client.sem.Release(1)

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(client.opts.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if client.opts.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(client.opts.Dimensions))
	}

	var vectors [][]float32
	var usage Usage
	err := client.withRetry(ctx, func() error {
		response, err := client.api.Embeddings.New(ctx, params)
		if err != nil {
			return err
		}
		if len(response.Data) != len(texts) {
			return fmt.Errorf("llm: embedding count mismatch: sent %d, got %d", len(texts), len(response.Data))
		}

		vectors = make([][]float32, len(response.Data))
		for _, item := range response.Data {
			vector := make([]float32, len(item.Embedding))
			for i, value := range item.Embedding {
				vector[i] = float32(value)
			}
			vectors[item.Index] = vector
		}

		usage = Usage{
			PromptTokens: response.Usage.PromptTokens,
			CostMicros:   response.Usage.PromptTokens * client.opts.EmbeddingTokenCost / 1_000_000,
		}
		return nil
	})
	if err != nil {
		return nil, Usage{}, err
	}
	return vectors, usage, nil
}

func (client *Client) chatUsage(tier policy.Tier, promptTokens, completionTokens int64) Usage {
	inputRate, outputRate := client.opts.PrimaryInputCost, client.opts.PrimaryOutputCost
	if tier == policy.TierEconomy {
		inputRate, outputRate = client.opts.EconomyInputCost, client.opts.EconomyOutputCost
	}

	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CostMicros:       (promptTokens*inputRate + completionTokens*outputRate) / 1_000_000,
	}
}

// # Retry

// permanentError marks a failure that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// withRetry runs fn up to 1+LLMMaxRetries times with exponential backoff and
// jitter, retrying only transient failures.
func (client *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= constants.LLMMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := constants.LLMRetryBaseDelay << (attempt - 1)
			backoff += time.Duration(rand.Int63n(int64(backoff)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(lastErr, &permanent) {
			lastErr = permanent.err
			if lastErr == nil {
				return nil
			}
			break
		}

		if !isTransient(lastErr) {
			break
		}
	}

	if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
		return lastErr
	}
	return apperr.Upstream(lastErr)
}

// isTransient classifies upstream failures worth retrying.
func isTransient(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
