// Package stream reads the server-sent event stream of an i3X
// subscription.
//
// A Reader owns one background goroutine per subscription. It parses
// frames, drops heartbeats, decodes value changes and hands them to a
// handler in arrival order, or queues them on the subscription tracker.
// When the connection drops it reopens the stream with backoff and sends
// the last seen event id so the server can resume. A 404 or a rejected
// credential ends the stream for good.
//
//	r := stream.NewReader(client, tracker, stream.DefaultConfig())
//	r.OnValueChange(func(c model.ValueChange) { ... })
//	if err := r.Start(ctx); err != nil {
//	    return err
//	}
//	defer r.Stop()
package stream
