//go:build unix

package cli

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyQuiet calls quiet on SIGTSTP until the returned func is called.
func notifyQuiet(quiet func()) stopFunc {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, syscall.SIGTSTP)
	go func() {
		for {
			select {
			case <-ch:
				quiet()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
