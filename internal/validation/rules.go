package validation

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
)

// DocumentCountRule passes when the target count is within tolerance of the source count.
type DocumentCountRule struct {
	backend   Backend
	tolerance float64
}

// NewDocumentCountRule creates a count parity rule. tolerance is a fraction of the source count.
func NewDocumentCountRule(backend Backend, tolerance float64) *DocumentCountRule {
	return &DocumentCountRule{backend: backend, tolerance: tolerance}
}

func (r *DocumentCountRule) Name() string { return "document_count" }

func (r *DocumentCountRule) Validate(ctx context.Context, source, target string) domain.ValidationResult {
	srcCount, err := r.backend.Count(ctx, source)
	if err != nil {
		return errorResult("count source", err)
	}
	tgtCount, err := r.backend.Count(ctx, target)
	if err != nil {
		return errorResult("count target", err)
	}

	diff := srcCount - tgtCount
	if diff < 0 {
		diff = -diff
	}
	allowed := float64(srcCount) * r.tolerance
	details := domain.CountDetails{
		SourceCount: srcCount,
		TargetCount: tgtCount,
		Difference:  diff,
		Allowed:     allowed,
	}

	if float64(diff) > allowed {
		return domain.ValidationResult{
			Passed:  false,
			Message: fmt.Sprintf("document count mismatch: source=%d target=%d allowed=%.1f", srcCount, tgtCount, allowed),
			Details: details,
		}
	}
	return domain.ValidationResult{
		Passed:  true,
		Message: fmt.Sprintf("document counts match: source=%d target=%d", srcCount, tgtCount),
		Details: details,
	}
}

// SampleExistenceRule checks that a random sample of source ids exists in the target.
type SampleExistenceRule struct {
	backend   Backend
	size      int
	chunkSize int
}

// NewSampleExistenceRule creates a sample rule. Lookups run concurrently in chunks of chunkSize ids.
func NewSampleExistenceRule(backend Backend, size, chunkSize int) *SampleExistenceRule {
	return &SampleExistenceRule{backend: backend, size: size, chunkSize: max(chunkSize, 1)}
}

func (r *SampleExistenceRule) Name() string { return "sample_existence" }

func (r *SampleExistenceRule) Validate(ctx context.Context, source, target string) domain.ValidationResult {
	ids, err := r.backend.SampleIDs(ctx, source, r.size)
	if err != nil {
		return errorResult("sample source", err)
	}
	if len(ids) == 0 {
		return domain.ValidationResult{
			Passed:  true,
			Message: "source is empty, nothing to sample",
			Details: domain.SampleDetails{},
		}
	}

	var (
		mu    sync.Mutex
		found = make(map[string]bool, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(ids); start += r.chunkSize {
		chunk := ids[start:min(start+r.chunkSize, len(ids))]
		g.Go(func() error {
			res, mgetErr := r.backend.MultiGet(gctx, target, chunk)
			if mgetErr != nil {
				return mgetErr
			}
			mu.Lock()
			defer mu.Unlock()
			for id, ok := range res {
				found[id] = ok
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return errorResult("mget target", err)
	}

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	details := domain.SampleDetails{
		SampleSize: len(ids),
		Found:      len(ids) - len(missing),
		MissingIDs: missing,
	}
	if len(missing) > 0 {
		return domain.ValidationResult{
			Passed:  false,
			Message: fmt.Sprintf("%d of %d sampled documents missing from target", len(missing), len(ids)),
			Details: details,
		}
	}
	return domain.ValidationResult{
		Passed:  true,
		Message: fmt.Sprintf("all %d sampled documents present in target", len(ids)),
		Details: details,
	}
}

// toInt converts a decoded JSON number.
func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(math.Round(n))
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
