package detect

import (
	"log/slog"

	"github.com/runger/camflow/internal/capture"
	"github.com/runger/camflow/internal/config"
)

// New builds the configured detector backend. A recording backend
// without capture data degrades to the synthetic detector with a
// warning rather than failing the run.
func New(cfg config.DetectorConfig, classes []string, rec *capture.Recording, logger *slog.Logger) Detector {
	switch cfg.Backend {
	case "recording":
		if rec == nil {
			logger.Warn("recording detector requested but source carries no capture data, falling back to synthetic detector")
			return NewSynthetic(cfg.Synthetic, classes)
		}
		return NewRecording(rec)
	default:
		return NewSynthetic(cfg.Synthetic, classes)
	}
}
