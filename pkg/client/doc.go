// Package client is the high-level i3X client.
//
// A Client wraps the request/response calls of an i3X server (namespaces,
// types, objects, values, history and writes) and manages subscriptions.
// Subscribe creates a subscription, registers elements and starts a
// background stream reader; changes then reach the OnValueChange callback
// or a per-subscription queue drained with Sync:
//
//	c := client.New("https://i3x.example.com", client.DefaultConfig())
//	c.OnValueChange(func(_ *client.Client, sub *client.Subscription, ch model.ValueChange) {
//	    fmt.Println(sub.ID(), ch.ElementID)
//	})
//	if err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	defer c.Disconnect()
//
//	sub, err := c.Subscribe(ctx, []string{"pump-1"}, client.SubscribeOptions{})
//	if err != nil {
//	    return err
//	}
//	defer c.Unsubscribe(ctx, sub)
//
// The low-level calls (CreateSubscription, RegisterItems, StartStream and
// friends) give finer control. They adopt subscription ids the client has
// not seen, so a process can resume subscriptions it created before a
// restart.
package client
