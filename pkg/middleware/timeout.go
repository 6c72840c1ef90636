package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	apperrors "medislot/pkg/errors"
)

type writerState uint8

const (
	stateOpen writerState = iota
	stateCommitted
	stateTimedOut
)

// deadlineWriter lets exactly one side own the response: the handler once it
// writes, or the timeout once the deadline passes first.
type deadlineWriter struct {
	http.ResponseWriter
	mu    sync.Mutex
	state writerState
}

func (dw *deadlineWriter) WriteHeader(code int) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if dw.state != stateOpen {
		return
	}
	dw.state = stateCommitted
	dw.ResponseWriter.WriteHeader(code)
}

func (dw *deadlineWriter) Write(b []byte) (int, error) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	switch dw.state {
	case stateTimedOut:
		return 0, http.ErrHandlerTimeout
	case stateOpen:
		dw.state = stateCommitted
	}
	return dw.ResponseWriter.Write(b)
}

// expire claims the response for the timeout. It reports false when the
// handler already started writing.
func (dw *deadlineWriter) expire() bool {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	claimed := dw.state == stateOpen
	dw.state = stateTimedOut
	return claimed
}

// RequestTimeout bounds the whole request. The deadline also reaches the
// storage layer, so an in-flight unit of work is aborted rather than left open.
func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			dw := &deadlineWriter{ResponseWriter: w}
			done := make(chan struct{})
			panicked := make(chan any, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(dw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case p := <-panicked:
				panic(p)
			case <-done:
			case <-ctx.Done():
				if dw.expire() {
					_ = apperrors.WriteError(w, apperrors.Timeout("Request timeout"))
				}
			}
		})
	}
}
