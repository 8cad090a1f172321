// Package singleinstance keeps one host process per user and data dir.
//
// The first process takes an OS file lock and listens on a local command
// channel: a unix domain socket, or a named pipe on Windows. Later
// processes fail to take the lock, forward their joined command line over
// the channel and exit 0. The owner reads one newline-terminated command
// per connection and hands it to a callback on the UI-affine dispatcher.
//
//	c := singleinstance.New(lock, channel, singleinstance.WithDispatcher(loop))
//	owner, err := c.Start(ctx, route)
//	if !owner {
//	    return c.Forward(ctx, os.Args[1:])
//	}
//	defer c.Stop()
//
// The Lock and Channel interfaces keep the coordinator testable; Bus
// provides in-memory versions of both.
package singleinstance
