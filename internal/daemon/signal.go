package daemon

import (
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandlers calls shutdown once SIGTERM or SIGINT arrives.
// The returned function stops listening.
func SetupSignalHandlers(shutdown func()) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigChan:
			shutdown()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
