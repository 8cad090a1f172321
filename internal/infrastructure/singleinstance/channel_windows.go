//go:build windows

package singleinstance

import (
	"context"
	"fmt"

	"github.com/Microsoft/go-winio"
	"go.uber.org/zap"
)

// PipeChannel is a Channel over a named pipe
type PipeChannel struct {
	name string
	log  *zap.Logger
}

// NewChannel returns the platform command channel at address
func NewChannel(address string, log *zap.Logger) Channel {
	if log == nil {
		log = zap.NewNop()
	}
	return &PipeChannel{name: address, log: log.Named("channel")}
}

// Listen creates the pipe, restricted to the current user
func (p *PipeChannel) Listen(ctx context.Context, handler func(string)) (<-chan struct{}, error) {
	ln, err := winio.ListenPipe(p.name, &winio.PipeConfig{
		// owner rights only
		SecurityDescriptor: "D:P(A;;GA;;;OW)",
		InputBufferSize:    4096,
		OutputBufferSize:   4096,
	})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", p.name, err)
	}
	return serve(ctx, ln, handler, p.log), nil
}

// Send connects to the pipe and writes one command
func (p *PipeChannel) Send(ctx context.Context, command string) error {
	conn, err := winio.DialPipeContext(ctx, p.name)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.name, err)
	}
	defer conn.Close()
	return writeCommand(conn, command)
}
