package recognition

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

// Limited throttles calls to an underlying recognizer.
type Limited struct {
	next    Recognizer
	limiter *rate.Limiter
}

// NewLimited wraps next with a token bucket of perSecond calls and the given
// burst. A non-positive perSecond disables throttling and returns next as is.
func NewLimited(next Recognizer, perSecond float64, burst int) Recognizer {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Recognize waits for a token, then forwards the call.
func (l *Limited) Recognize(ctx context.Context, strokes []*sketch.Stroke) ([]Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	return l.next.Recognize(ctx, strokes)
}
