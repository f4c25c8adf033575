package serviceutil

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
)

// Returns a context that will live until Ctrl+C is pressed
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		slog.Warn("received interrupt, stopping")
		cancel()
	}()

	return ctx
}

func Fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}

// Exit logs message and exits with code, for non-fatal but unsuccessful
// outcomes.
func Exit(code int, message string, args ...any) {
	slog.Warn(message, args...)
	os.Exit(code)
}

// Lock takes an exclusive, non-blocking lock on path. ok is false when
// another process already holds it.
func Lock(path string) (unlock func(), ok bool, err error) {
	lock := flock.New(path)
	ok, err = lock.TryLock()
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() {
		err := lock.Unlock()
		if err != nil {
			slog.Warn("failed to release lock", "path", path, "err", err)
		}
	}, true, nil
}
