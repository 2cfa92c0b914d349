package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// SignalHandler turns SIGINT/SIGTERM into context cancellation. The first
// signal cancels; a second one exits the process.
type SignalHandler struct {
	sigChan chan os.Signal
	exit    func(int)
}

// NewSignalHandler registers for interrupt and terminate signals
func NewSignalHandler() *SignalHandler {
	sh := &SignalHandler{
		sigChan: make(chan os.Signal, 2),
		exit:    os.Exit,
	}
	signal.Notify(sh.sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sh
}

// Context returns a child of parent that is cancelled on the first signal.
// Call stop to unregister.
func (sh *SignalHandler) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sh.sigChan:
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sh.sigChan:
			log.Warn().Str("signal", sig.String()).Msg("Second signal, exiting immediately")
			sh.exit(130)
		case <-done:
		}
	}()

	stop := func() {
		signal.Stop(sh.sigChan)
		close(done)
		cancel()
	}
	return ctx, stop
}
