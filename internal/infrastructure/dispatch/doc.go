// Package dispatch provides the host's UI-affine executor.
//
// A Loop runs tasks one at a time on a single goroutine in submission order.
// Post is fire-and-forget; Do waits for the result and runs inline when the
// caller is already on the loop, so nested calls cannot deadlock.
//
//	loop := dispatch.New(logger)
//	go loop.Run(ctx)
//
//	loop.Post(func(ctx context.Context) { presenter.Hide(key) })
//	err := loop.Do(ctx, func(ctx context.Context) error {
//	    return presenter.Show(ctx, view)
//	})
package dispatch
