package billing

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one item of a ParallelMap.
type Result[T any] struct {
	Value T
	Err   error
}

// Results keeps input order.
type Results[T any] []Result[T]

// Err joins every item error, nil when all succeeded.
func (rs Results[T]) Err() error {
	var errs []error
	for _, r := range rs {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Values returns the successful values, in input order.
func (rs Results[T]) Values() []T {
	out := make([]T, 0, len(rs))
	for _, r := range rs {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}

// ParallelMap runs fn over items concurrently, at most limit at a time
// (limit <= 0 means unbounded). A failing item records its error and the
// others keep running. Cancelling ctx marks unstarted items with ctx.Err().
func ParallelMap[In, Out any](ctx context.Context, items []In, limit int, fn func(context.Context, In) (Out, error)) Results[Out] {
	results := make(Results[Out], len(items))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := fn(ctx, item)
			results[i] = Result[Out]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
