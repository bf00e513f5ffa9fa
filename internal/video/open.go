package video

import (
	"fmt"
	"strings"

	"github.com/runger/camflow/internal/capture"
	"github.com/runger/camflow/internal/config"
)

// Open resolves a source reference into a frame Source. References of
// the form "synthetic:<name>" fabricate a stream from configuration;
// paths ending in .jsonl replay a capture file. The loaded recording
// (nil for synthetic sources) is returned alongside so the caller can
// wire a recording-backed detector to the same data.
func Open(ref string, cfg *config.Config) (Source, *capture.Recording, error) {
	switch {
	case strings.HasPrefix(ref, "synthetic:"):
		return NewSynthetic(cfg.Video.Synthetic, cfg.Video.SamplingFPS), nil, nil
	case strings.HasSuffix(ref, ".jsonl"):
		rec, err := capture.Load(ref)
		if err != nil {
			return nil, nil, err
		}
		return NewFromRecording(rec, cfg.Video.SamplingFPS), rec, nil
	default:
		return nil, nil, fmt.Errorf("unsupported source %q (expected synthetic:<name> or a .jsonl capture file)", ref)
	}
}
