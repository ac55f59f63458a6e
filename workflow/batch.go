package workflow

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunBatch runs g once per input with at most limit runs in flight (limit
// <= 0 means no limit). Results are indexed like inputs. The first failure
// cancels the runs still in progress and is returned; results of runs that
// never started are nil.
func RunBatch[S any](ctx context.Context, g *Graph[S], inputs []S, limit int, opts ...RunOption) ([]*Result[S], error) {
	results := make([]*Result[S], len(inputs))

	eg, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}

	for i, input := range inputs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := g.Run(ctx, input, opts...)
			results[i] = res
			return err
		})
	}

	return results, eg.Wait()
}
