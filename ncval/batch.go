package ncval

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/log"
	"github.com/colorfulnotion/ncval/ncvalerrors"
	"golang.org/x/sync/errgroup"
)

// Region is a named code region submitted to ValidateAll.
type Region struct {
	Name string
	Code []byte
}

// ValidateAll validates regions concurrently with at most jobs workers
// (GOMAXPROCS when jobs <= 0). Results are returned in input order. The
// context is consulted between regions only; a region already being scanned
// always runs to completion. Validation failures are reported through each
// Result, not as an error.
func ValidateAll(ctx context.Context, regions []Region, options Options, features *cpufeatures.Features, jobs int) ([]*Result, error) {
	if features == nil {
		return nil, fmt.Errorf("ValidateAll: %d regions: %w", len(regions), ncvalerrors.ErrNilFeatures)
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	start := time.Now()
	results := make([]*Result, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, region := range regions {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := Collect(region.Code, options, features)
			r.Name = region.Name
			results[i] = r
			log.Trace(log.Ncval, "region validated", "name", region.Name, "size", r.Size, "valid", r.Valid, "diagnostics", len(r.Diagnostics))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	log.Debug(log.Ncval, "batch validated", "regions", len(regions), "jobs", jobs, "elapsed", time.Since(start))
	return results, nil
}
