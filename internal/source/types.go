// Package source defines data source descriptors and the byte source
// adapters that feed a session's line index.
package source

import (
	"context"
	"fmt"
	"strings"
)

// Kind names a transport a data source reads from.
type Kind string

const (
	KindFile    Kind = "file"
	KindProcess Kind = "process"
	KindTCP     Kind = "tcp"
	KindUDP     Kind = "udp"
	KindSerial  Kind = "serial"
)

// Format names the row framing applied to a source's bytes.
type Format string

const (
	FormatText Format = "text"
	FormatDLT  Format = "dlt"
)

// DataSource identifies one ingestion origin. It is immutable after
// creation and serves as the restart/replay key. A source with Childs
// expands into that many contributing links (e.g. a concatenated
// multi-file source).
type DataSource struct {
	Kind    Kind
	Format  Format
	Path    string   // file
	Command string   // process
	Args    []string // process
	Dir     string   // process working directory
	Address string   // tcp/udp
	Follow  bool     // file: keep polling for growth after EOF
	Childs  []DataSource
}

// Description returns a human-readable identity for the source.
func (d DataSource) Description() string {
	switch d.Kind {
	case KindFile:
		if len(d.Childs) > 0 {
			parts := make([]string, len(d.Childs))
			for i, c := range d.Childs {
				parts[i] = c.Description()
			}
			return strings.Join(parts, " + ")
		}
		return d.Path
	case KindProcess:
		if len(d.Args) > 0 {
			return d.Command + " " + strings.Join(d.Args, " ")
		}
		return d.Command
	case KindTCP, KindUDP:
		return fmt.Sprintf("%s://%s", d.Kind, d.Address)
	default:
		return string(d.Kind)
	}
}

// Link is a stable (id, alias) pair naming one origin contributing rows to
// a session's index.
type Link struct {
	ID    uint16
	Alias string
}

// Sink receives bytes and lifecycle signals from running sources. OnBytes
// is called by adapters with row-aligned batches where the transport frames
// naturally (process, tcp, udp) and raw chunks for files.
type Sink interface {
	OnBytes(link Link, b []byte) error
	OnSourceEnded(link Link)
	OnSourceError(link Link, err error)
}

// ByteSource is one runnable ingestion adapter. Run blocks until the stream
// ends, the context is cancelled, or an unrecoverable transport error
// occurs; adapters must notice cancellation promptly.
type ByteSource interface {
	Descriptor() DataSource
	Link() Link
	Run(ctx context.Context, sink Sink) error
}
