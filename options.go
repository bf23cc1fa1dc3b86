// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package reactor

import (
	"os"

	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration applied at loop_init.
type loopOptions struct {
	logger       *logiface.Logger[logiface.Event]
	signalMask   []os.Signal
	rePollBudget int
	maxEvents    int
	clock        Clock
}

const (
	defaultRePollBudget = 48
	defaultMaxEvents    = 1024
)

// LoopOption configures a Loop at construction time.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption via a closure, matching the
// functional-options shape used throughout the rest of the loop's
// configuration surface.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (o *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return o.applyLoopFunc(opts)
}

// WithLogger attaches a structured logger. A nil logger (the default)
// disables all logging calls.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithSignalMask requests that the given signals be blocked for the
// duration of the loop's blocking kernel wait (§4.3 step 4), so that
// delivery is deferred to a point where the loop's own signal watcher
// can observe it. Applied on Linux only; on Darwin the mask is ignored.
func WithSignalMask(signals ...os.Signal) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.signalMask = signals
		return nil
	}}
}

// WithRePollBudget overrides the re-poll budget (§9): the number of
// zero-timeout re-polls io_poll will perform to drain a saturated
// batch before yielding back to the caller. Default 48.
func WithRePollBudget(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n < 0 {
			return ErrInvalidArgument
		}
		opts.rePollBudget = n
		return nil
	}}
}

// WithMaxEvents overrides the kernel wait's event batch size. Default
// 1024, matching the spec's "fixed batch (e.g., 1024)".
func WithMaxEvents(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n <= 0 {
			return ErrInvalidArgument
		}
		opts.maxEvents = n
		return nil
	}}
}

// WithClock injects a Clock, primarily for deterministic tests.
func WithClock(c Clock) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if c == nil {
			return ErrInvalidArgument
		}
		opts.clock = c
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances over the defaults.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		rePollBudget: defaultRePollBudget,
		maxEvents:    defaultMaxEvents,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.clock == nil {
		cfg.clock = newSystemClock()
	}
	return cfg, nil
}
