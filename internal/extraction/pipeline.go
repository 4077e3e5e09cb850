package extraction

import (
	"context"
	"errors"
	"log/slog"
)

// Pipeline runs the primary provider and falls back to the secondary
// one only when the primary is rate limited. Every other failure mode
// (transport error, provider error, malformed payload) resolves to an
// empty result so callers never see an error from extraction.
type Pipeline struct {
	primary  Extractor
	fallback Extractor
}

// NewPipeline creates a Pipeline over the two providers.
func NewPipeline(primary, fallback Extractor) *Pipeline {
	return &Pipeline{
		primary:  primary,
		fallback: fallback,
	}
}

// Extract runs the extraction state machine. The returned result has
// RateLimited set only when both providers refuse due to throughput
// limits, which lets callers show "service busy" instead of "could not
// read receipt". The fallback path never carries a restaurant name.
func (p *Pipeline) Extract(ctx context.Context, image []byte, mimeType string) *Result {
	res, err := p.primary.Extract(ctx, image, mimeType)
	if err == nil {
		return res
	}

	if !errors.Is(err, ErrRateLimited) {
		slog.Error("Primary extraction failed", "error", err)
		return &Result{Items: []Item{}}
	}

	slog.Info("Primary provider rate limited, trying fallback")
	res, err = p.fallback.Extract(ctx, image, mimeType)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			slog.Error("Fallback provider rate limited too")
			return &Result{Items: []Item{}, RateLimited: true}
		}
		slog.Error("Fallback extraction failed", "error", err)
		return &Result{Items: []Item{}}
	}

	res.RestaurantName = ""
	return res
}

// Close closes both providers.
func (p *Pipeline) Close() error {
	err := p.primary.Close()
	if ferr := p.fallback.Close(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}
