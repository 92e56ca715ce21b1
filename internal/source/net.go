package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

// TCPSource connects to a remote endpoint and streams received lines.
type TCPSource struct {
	ds   DataSource
	link Link
}

// NewTCPSource creates a tcp adapter for ds.
func NewTCPSource(ds DataSource, link Link) *TCPSource {
	return &TCPSource{ds: ds, link: link}
}

// Descriptor returns the owning data source
func (s *TCPSource) Descriptor() DataSource { return s.ds }

// Link returns the source's link
func (s *TCPSource) Link() Link { return s.link }

// Run dials the endpoint and reads until the peer closes or the context is
// cancelled. Cancellation closes the connection to unblock the read.
func (s *TCPSource) Run(ctx context.Context, sink Sink) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.ds.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.ds.Address, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := append(scanner.Bytes(), '\n')
		if err := sink.OnBytes(s.link, line); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read from %s: %w", s.ds.Address, err)
	}
	return nil
}

// UDPSource listens on a local endpoint and streams received datagrams, one
// row per datagram.
type UDPSource struct {
	ds   DataSource
	link Link
}

// NewUDPSource creates a udp adapter for ds.
func NewUDPSource(ds DataSource, link Link) *UDPSource {
	return &UDPSource{ds: ds, link: link}
}

// Descriptor returns the owning data source
func (s *UDPSource) Descriptor() DataSource { return s.ds }

// Link returns the source's link
func (s *UDPSource) Link() Link { return s.link }

// Run receives datagrams until the context is cancelled. A datagram without
// a trailing newline gets one so each datagram indexes as one row.
func (s *UDPSource) Run(ctx context.Context, sink Sink) error {
	conn, err := net.ListenPacket("udp", s.ds.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.ds.Address, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to receive on %s: %w", s.ds.Address, err)
		}
		if n == 0 {
			continue
		}
		row := buf[:n]
		if row[n-1] != '\n' {
			row = append(row, '\n')
		}
		if err := sink.OnBytes(s.link, row); err != nil {
			return err
		}
	}
}
