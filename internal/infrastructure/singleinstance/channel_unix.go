//go:build darwin || linux || freebsd || netbsd || openbsd

package singleinstance

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"go.uber.org/zap"
)

// SocketChannel is a Channel over a unix domain socket
type SocketChannel struct {
	path string
	log  *zap.Logger
}

// NewChannel returns the platform command channel at address
func NewChannel(address string, log *zap.Logger) Channel {
	if log == nil {
		log = zap.NewNop()
	}
	return &SocketChannel{path: address, log: log.Named("channel")}
}

// Listen binds the socket. A leftover socket file is removed first; the
// caller holds the instance lock, so nobody else can be serving on it.
func (s *SocketChannel) Listen(ctx context.Context, handler func(string)) (<-chan struct{}, error) {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", s.path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return serve(ctx, ln, handler, s.log), nil
}

// Send dials the socket and writes one command
func (s *SocketChannel) Send(ctx context.Context, command string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", s.path)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.path, err)
	}
	defer conn.Close()
	return writeCommand(conn, command)
}
