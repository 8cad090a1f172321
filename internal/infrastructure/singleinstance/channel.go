package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/shared/utils"
)

const (
	ioTimeout     = 5 * time.Second
	acceptBackoff = 50 * time.Millisecond
)

// serve accepts one connection at a time and reads one command from each.
// Errors on a single connection are logged and the loop goes on. Once ctx
// is done the listener is closed and nothing more is read or dispatched.
func serve(ctx context.Context, ln net.Listener, handler func(string), log *zap.Logger) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				log.Warn("accept failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(acceptBackoff):
				}
				continue
			}

			command, err := readCommand(conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Warn("dropping connection", zap.Error(err))
				continue
			}
			handler(command)
		}
	}()

	return done
}

// readCommand reads one newline-terminated UTF-8 line
func readCommand(conn net.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(ioTimeout))

	// +2 leaves room for the line terminator
	r := bufio.NewReader(io.LimitReader(conn, utils.MaxCommandLength+2))
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read command: unterminated or oversized line (%d bytes)", len(line))
		}
		return "", fmt.Errorf("read command: %w", err)
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if err := utils.ValidateCommand(line); err != nil {
		return "", err
	}
	return line, nil
}

func writeCommand(conn net.Conn, command string) error {
	if err := utils.ValidateCommand(command); err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if _, err := io.WriteString(conn, command+"\n"); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}
