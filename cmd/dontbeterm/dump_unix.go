//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// watchDumpSignal dumps the log ring buffer into dir on every SIGUSR1.
func watchDumpSignal(dir string) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				dumpRingBuffer(dir)
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
