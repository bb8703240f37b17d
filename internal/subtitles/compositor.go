package subtitles

import (
	"context"
	"log/slog"
	"time"

	"clipforge/internal/encoding"
	"clipforge/internal/fileutil"
	"clipforge/internal/logging"
	"clipforge/internal/procexec"
	"clipforge/internal/services"
)

// Compositor burns SRT captions into a video with ffmpeg.
type Compositor struct {
	Runner   procexec.Runner
	FFmpeg   string
	Settings encoding.BurnSettings
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Burn renders srtPath onto source and returns the path of the encoded
// output, allocated from paths. The quality factor is chosen from the
// source size; Settings.CRF is ignored.
func (c *Compositor) Burn(ctx context.Context, paths encoding.PathAllocator, source, srtPath string) (string, error) {
	size, err := fileutil.Size(source)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "subtitles", "burn", "source video missing", err)
	}
	settings := c.Settings
	settings.CRF = encoding.QualityForSize(size)

	output := paths.Path("subtitled", ".mp4")
	logger := logging.WithContext(ctx, logging.NewComponentLogger(c.Logger, "compositor"))
	logger.Info("burning captions",
		logging.Int64("source_bytes", size),
		logging.Int("crf", settings.CRF),
		logging.Duration("timeout", c.Timeout),
	)

	ffmpeg := c.FFmpeg
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	result, err := c.Runner.Run(ctx, procexec.Command{
		Name:    ffmpeg,
		Args:    encoding.BurnArgs(source, srtPath, output, settings),
		Timeout: c.Timeout,
		Stage:   "subtitles",
	})
	if err != nil {
		return "", err
	}
	logger.Info("caption burn finished", logging.Duration("duration", result.Duration))
	return output, nil
}
