//go:build windows

package main

// Windows has no SIGUSR1.
func watchDumpSignal(string) (stop func()) {
	return func() {}
}
