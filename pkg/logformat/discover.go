package logformat

import (
	"errors"
	"fmt"
)

// ErrFormatNotDetected reports that no candidate format cleared the
// confidence threshold over the sampled rows.
var ErrFormatNotDetected = errors.New("timestamp format not detected")

// Candidate specs tried during discovery, most specific first.
var knownSpecs = []string{
	"%Y-%m-%dT%H:%M:%S.%f",
	"%Y-%m-%dT%H:%M:%S",
	"%Y-%m-%d %H:%M:%S.%f",
	"%Y-%m-%d %H:%M:%S",
	"%d/%b/%Y:%H:%M:%S %z",
	"%b %e %H:%M:%S",
	"%H:%M:%S.%f",
	"%H:%M:%S",
}

// KnownSpecs returns the built-in candidate specs in trial order
func KnownSpecs() []string {
	out := make([]string, len(knownSpecs))
	copy(out, knownSpecs)
	return out
}

// Discover scans a bounded sample of rows against the candidate library and
// returns the first format whose share of matching rows reaches
// minConfidence (0..1]. Empty rows are ignored.
func Discover(sample []string, minConfidence float64) (*Format, error) {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = 0.5
	}
	total := 0
	for _, line := range sample {
		if line != "" {
			total++
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no rows to sample", ErrFormatNotDetected)
	}

	for _, spec := range knownSpecs {
		f, err := NewFormat(spec)
		if err != nil {
			continue
		}
		hits := 0
		for _, line := range sample {
			if line == "" {
				continue
			}
			if _, ok := f.Match(line); ok {
				hits++
			}
		}
		if float64(hits)/float64(total) >= minConfidence {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %d rows sampled", ErrFormatNotDetected, total)
}

// Validate compiles spec and, when sample is not empty, confirms the format
// both matches and parses it. It returns the extracted timestamp for a
// non-empty sample.
func Validate(spec, sample string, d Defaults) (*Format, int64, error) {
	f, err := NewFormat(spec)
	if err != nil {
		return nil, 0, err
	}
	if sample == "" {
		return f, 0, nil
	}
	m, ok := f.Match(sample)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q does not match %q", ErrExtractionFailed, sample, spec)
	}
	ts, err := f.Extract(m, d)
	if err != nil {
		return nil, 0, err
	}
	return f, ts, nil
}
