// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

const defaultModel = "gpt-4o-mini"

const systemPrompt = "You are an expert code analysis engine. " +
	"Respond only with JSON that conforms to the requested schema."

// OpenAIClient implements Completer on the OpenAI chat completions API
// using structured outputs.
type OpenAIClient struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

// NewOpenAIClient creates a client. The API key is required; an empty
// model falls back to the default.
func NewOpenAIClient(apiKey, model string, log *slog.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, Permanent(fmt.Errorf("%w: no API key configured", ErrAuth))
	}
	if log == nil {
		log = slog.Default()
	}
	if model == "" {
		model = defaultModel
		log.Warn("no model configured, using default", "model", model)
	}
	log.Info("initializing OpenAI client", "model", model)
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model, log: log}, nil
}

func (o *OpenAIClient) Name() string { return "openai/" + o.model }

// Complete implements the Completer interface.
func (o *OpenAIClient) Complete(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schema.Name,
				Schema: schema.Definition,
				Strict: true,
			},
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, o.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	o.log.Debug("completion received",
		"model", o.model, "schema", schema.Name,
		"finish_reason", resp.Choices[0].FinishReason)
	return json.RawMessage(StripFences(resp.Choices[0].Message.Content)), nil
}

// classify maps provider errors onto the retry taxonomy: auth and invalid
// requests are permanent, everything else (rate limits, timeouts, 5xx) is
// transient and left to the retry layer.
func (o *OpenAIClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return Permanent(fmt.Errorf("%w: %v", ErrAuth, err))
		case 400, 404, 422:
			return Permanent(fmt.Errorf("provider rejected request: %w", err))
		}
	}
	return fmt.Errorf("provider call failed: %w", err)
}
