package source

import (
	"context"
	"fmt"
	"path/filepath"
)

// ConcatSource runs a data source's child sources back to back against the
// same sink, so several files merge into one stream with per-child links.
type ConcatSource struct {
	ds     DataSource
	childs []ByteSource
}

// Descriptor returns the owning data source
func (s *ConcatSource) Descriptor() DataSource { return s.ds }

// Link returns the link of the first child; only childs contribute rows.
func (s *ConcatSource) Link() Link {
	if len(s.childs) > 0 {
		return s.childs[0].Link()
	}
	return Link{}
}

// Childs returns the expanded child sources
func (s *ConcatSource) Childs() []ByteSource { return s.childs }

// Run streams each child in order, signalling end of stream per child so
// an unterminated tail flushes before the next child's rows arrive. A
// child failure stops the whole composite; the sink has already received
// everything indexed so far.
func (s *ConcatSource) Run(ctx context.Context, sink Sink) error {
	for _, child := range s.childs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := child.Run(ctx, sink); err != nil {
			return fmt.Errorf("child %s: %w", child.Descriptor().Description(), err)
		}
		sink.OnSourceEnded(child.Link())
	}
	return nil
}

// Open expands ds into a runnable adapter, registering one link per
// contributing origin.
func Open(ds DataSource, links *Links) (ByteSource, error) {
	if len(ds.Childs) > 0 {
		composite := &ConcatSource{ds: ds}
		for _, child := range ds.Childs {
			if len(child.Childs) > 0 {
				return nil, fmt.Errorf("nested child sources are not supported")
			}
			src, err := Open(child, links)
			if err != nil {
				return nil, err
			}
			composite.childs = append(composite.childs, src)
		}
		return composite, nil
	}

	switch ds.Kind {
	case KindFile:
		return NewFileSource(ds, links.Register(filepath.Base(ds.Path))), nil
	case KindProcess:
		return NewProcessSource(ds, links.Register(ds.Description())), nil
	case KindTCP:
		return NewTCPSource(ds, links.Register(ds.Description())), nil
	case KindUDP:
		return NewUDPSource(ds, links.Register(ds.Description())), nil
	case KindSerial:
		return nil, fmt.Errorf("serial sources need an external adapter")
	default:
		return nil, fmt.Errorf("unknown source kind %q", ds.Kind)
	}
}

// RawBacked reports whether every leaf of ds reads from an on-disk file, so
// original bytes stay retrievable for raw export.
func RawBacked(ds DataSource) bool {
	if len(ds.Childs) > 0 {
		for _, child := range ds.Childs {
			if !RawBacked(child) {
				return false
			}
		}
		return true
	}
	return ds.Kind == KindFile
}
