// Package strategy runs an ordered list of candidate implementations of the
// same operation and reports which one produced the result.
package strategy

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoStrategies = errors.New("strategy chain is empty")

// Step is one named candidate.
type Step[In, Out any] struct {
	Name string
	Run  func(In) (Out, error)
}

// Attempt records a failed candidate.
type Attempt struct {
	Strategy string
	Err      error
}

// Result carries the winning value and the name of the step that made it.
type Result[Out any] struct {
	Value    Out
	Strategy string
	Failed   []Attempt
}

// Chain tries its steps in order; the first success wins.
type Chain[In, Out any] struct {
	steps []Step[In, Out]
}

func New[In, Out any](steps ...Step[In, Out]) *Chain[In, Out] {
	c := &Chain[In, Out]{}
	for _, s := range steps {
		if s.Run != nil {
			c.steps = append(c.steps, s)
		}
	}
	return c
}

// Append returns a new chain with s added at the end.
func (c *Chain[In, Out]) Append(s Step[In, Out]) *Chain[In, Out] {
	steps := make([]Step[In, Out], 0, len(c.steps)+1)
	steps = append(steps, c.steps...)
	return New(append(steps, s)...)
}

func (c *Chain[In, Out]) Names() []string {
	names := make([]string, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Name
	}
	return names
}

func (c *Chain[In, Out]) Len() int {
	return len(c.steps)
}

// Run executes the steps in order. A step that fails with an error marked by
// Permanent stops the chain immediately.
func (c *Chain[In, Out]) Run(in In) (Result[Out], error) {
	var res Result[Out]
	if len(c.steps) == 0 {
		return res, ErrNoStrategies
	}
	for _, s := range c.steps {
		out, err := s.Run(in)
		if err == nil {
			res.Value = out
			res.Strategy = s.Name
			return res, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			res.Failed = append(res.Failed, Attempt{Strategy: s.Name, Err: perm.err})
			return res, &ChainError{Attempts: res.Failed}
		}
		res.Failed = append(res.Failed, Attempt{Strategy: s.Name, Err: err})
	}
	return res, &ChainError{Attempts: res.Failed}
}

// ChainError is returned when no step succeeded.
type ChainError struct {
	Attempts []Attempt
}

func (e *ChainError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
	}
	return "all strategies failed: " + strings.Join(parts, "; ")
}

func (e *ChainError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying with the next step.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
