package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/product-info-extractor/internal/ratelimit"
)

// ScrollScript scrolls by step pixels every interval milliseconds until
// limit pixels have been scrolled or the end of the document is reached.
const ScrollScript = `async ({ step, interval, limit }) => {
  await new Promise((resolve) => {
    let total = 0;
    const timer = setInterval(() => {
      const height = document.body ? document.body.scrollHeight : 0;
      window.scrollBy(0, step);
      total += step;
      if (total >= limit || total >= height) {
        clearInterval(timer);
        resolve();
      }
    }, interval);
  });
}`

type HumanizeOptions struct {
	PointerMoves   int
	PointerArea    float64
	PointerPause   time.Duration
	ScrollStep     int
	ScrollInterval time.Duration
	ScrollLimit    int
}

func DefaultHumanizeOptions() HumanizeOptions {
	return HumanizeOptions{
		PointerMoves:   2,
		PointerArea:    500,
		PointerPause:   500 * time.Millisecond,
		ScrollStep:     100,
		ScrollInterval: 150 * time.Millisecond,
		ScrollLimit:    600,
	}
}

// HumanizeInteraction moves the pointer to random points and scrolls a
// bounded distance. Every step is attempted; the errors are joined.
func HumanizeInteraction(ctx context.Context, page Page, pacer *ratelimit.Pacer, o HumanizeOptions) error {
	var errs []error

	for i := 0; i < o.PointerMoves; i++ {
		if i > 0 {
			if err := pacer.Wait(ctx, o.PointerPause); err != nil {
				return err
			}
		}
		if err := page.MouseMove(pacer.Float(o.PointerArea), pacer.Float(o.PointerArea), 5); err != nil {
			errs = append(errs, fmt.Errorf("pointer move: %w", err))
		}
	}

	if o.ScrollLimit > 0 {
		args := map[string]any{
			"step":     o.ScrollStep,
			"interval": o.ScrollInterval.Milliseconds(),
			"limit":    o.ScrollLimit,
		}
		if _, err := page.Evaluate(ScrollScript, args); err != nil {
			errs = append(errs, fmt.Errorf("scroll: %w", err))
		}
	}

	return errors.Join(errs...)
}
