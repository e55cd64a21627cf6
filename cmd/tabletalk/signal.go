package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/harunnryd/tabletalk/internal/concurrency"
)

type SignalHandler struct {
	ctx     context.Context
	cancel  context.CancelFunc
	sigChan chan os.Signal
	done    chan struct{}
	once    sync.Once
}

func NewSignalHandler(ctx context.Context) *SignalHandler {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	return &SignalHandler{
		ctx:     ctx,
		cancel:  cancel,
		sigChan: sigChan,
		done:    make(chan struct{}),
	}
}

// Context is cancelled on the first interrupt or on Stop.
func (s *SignalHandler) Context() context.Context {
	return s.ctx
}

func (s *SignalHandler) Start() {
	concurrency.Go("signal-handler", func() {
		select {
		case <-s.sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived shutdown signal...")
			s.cancel()
		case <-s.done:
		}
	}, nil)
}

func (s *SignalHandler) Stop() {
	s.once.Do(func() {
		signal.Stop(s.sigChan)
		close(s.done)
		s.cancel()
	})
}
