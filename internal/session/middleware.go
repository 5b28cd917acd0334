package session

import (
	"context"
	"time"

	"github.com/arciisine/npx-types-plugin/internal/annotate"
	"github.com/arciisine/npx-types-plugin/internal/directive"
	"github.com/arciisine/npx-types-plugin/internal/guard"
	"github.com/arciisine/npx-types-plugin/internal/logging"
)

// Request is one trigger for a buffer.
type Request struct {
	// Key identifies the buffer, usually its absolute path.
	Key    string
	Buffer annotate.Buffer
	// Force reinstalls even when a valid install exists.
	Force bool
}

// Handler processes a request.
type Handler func(ctx context.Context, req *Request) (Result, error)

// Middleware wraps a Handler with a cross-cutting check.
type Middleware func(Handler) Handler

// Chain wraps h with mws. The first middleware is the outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RequireCandidate skips buffers that neither declare a package nor carry
// an annotation line.
func RequireCandidate(parser *directive.Parser) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (Result, error) {
			lines := req.Buffer.Lines()
			if _, ok := parser.ModuleReference(lines); ok {
				return next(ctx, req)
			}
			if _, _, ok := directive.FindAnnotation(lines); ok {
				return next(ctx, req)
			}
			return Result{Key: req.Key, State: StateNoModule}, nil
		}
	}
}

// Dedupe shares one in-flight run per request key. A trigger arriving while
// the same buffer is processed receives that run's result.
func Dedupe(serial *guard.Serial[Result]) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (Result, error) {
			res, _, err := serial.Do(ctx, req.Key, func(ctx context.Context) (Result, error) {
				return next(ctx, req)
			})
			return res, err
		}
	}
}

// Logged records each request and its outcome at debug level.
func Logged(logger *logging.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (Result, error) {
			log := logger.WithContext(logging.WithFile(ctx, req.Key))
			start := time.Now()
			res, err := next(ctx, req)
			log.Debug("Processed",
				"state", res.State.String(),
				"changed", res.Changed,
				"duration", time.Since(start).Round(time.Millisecond),
				"error", err,
			)
			return res, err
		}
	}
}
