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
	"log/slog"
	"time"
)

// WithRetry decorates a Completer with bounded retries and exponential
// backoff starting at baseDelay. Permanent errors and context cancellation
// stop immediately.
func WithRetry(next Completer, maxAttempts int, baseDelay time.Duration, log *slog.Logger) Completer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &retrying{next: next, max: maxAttempts, base: baseDelay, log: log}
}

type retrying struct {
	next Completer
	max  int
	base time.Duration
	log  *slog.Logger
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Complete(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.Complete(ctx, prompt, schema)
		if err == nil {
			return resp, nil
		}
		if IsPermanent(err) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		delay := r.base * time.Duration(1<<i)
		r.log.Debug("transient provider failure, backing off",
			"attempt", i+1, "max", r.max, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, last
}
