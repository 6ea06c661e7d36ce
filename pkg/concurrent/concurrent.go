package concurrent

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Each runs fn for every index in [0, n). With parallel set the indices fan
// out over an errgroup bounded by GOMAXPROCS; fn must only write state owned
// by its own index. The only error returned is ctx's.
func Each(ctx context.Context, n int, parallel bool, fn func(i int)) error {
	if !parallel || n < 2 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	return g.Wait()
}

// All runs every action concurrently and waits for all of them. Unlike
// Each, it never limits parallelism: it is meant for a handful of
// long-blocking calls such as agent dispatches.
func All(ctx context.Context, actions ...func(ctx context.Context)) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, action := range actions {
		g.Go(func() error {
			action(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
