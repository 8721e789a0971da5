// Package fallback runs alternatives in priority order until one works.
package fallback

import (
	"context"
	"fmt"
	"strings"
)

// Step is one alternative. A non-nil error means "try the next one".
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

type Attempt struct {
	Step string
	Err  error
}

// ExhaustedError reports every failed attempt of a chain.
type ExhaustedError struct {
	Chain    string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Step, a.Err))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: no strategies configured", e.Chain)
	}
	return fmt.Sprintf("%s: all strategies failed [%s]", e.Chain, strings.Join(parts, "; "))
}

// Unwrap exposes the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

type Chain struct {
	Name  string
	Steps []Step
}

// Run returns the name of the first step that succeeds. Context
// cancellation stops the chain immediately.
func (c Chain) Run(ctx context.Context) (string, error) {
	exhausted := &ExhaustedError{Chain: c.Name}
	for _, step := range c.Steps {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%s: %w", c.Name, err)
		}
		err := step.Run(ctx)
		if err == nil {
			return step.Name, nil
		}
		exhausted.Attempts = append(exhausted.Attempts, Attempt{Step: step.Name, Err: err})
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", c.Name, err)
	}
	return "", exhausted
}
