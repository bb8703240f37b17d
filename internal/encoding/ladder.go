package encoding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"clipforge/internal/logging"
	"clipforge/internal/procexec"
	"clipforge/internal/services"
)

const stageName = "encoding"

// PathAllocator hands out scratch paths that are removed with their owner.
// *workspace.Scope satisfies it.
type PathAllocator interface {
	Path(label, ext string) string
}

// Ladder applies the post-encode size policy to a primary transcode output.
type Ladder struct {
	Runner           procexec.Runner
	FFmpeg           string
	Thresholds       Thresholds
	EmergencyTimeout time.Duration
	Logger           *slog.Logger
}

// Result describes the file that survived the ladder.
type Result struct {
	Path         string
	Size         int64
	PrimaryBytes int64
	Emergency    bool
}

// Finalize verifies primary, runs the emergency pass when it is too large
// and enforces the attach ceiling. On success Result.Path is primary, which
// holds the emergency output when that pass ran.
func (l Ladder) Finalize(ctx context.Context, paths PathAllocator, primary string) (Result, error) {
	th := l.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	logger := logging.WithContext(ctx, logging.NewComponentLogger(l.loggerOrNop(), "ladder"))

	size, err := procexec.VerifyOutput(stageName, primary, th.MinOutputBytes)
	if err != nil {
		return Result{}, err
	}
	result := Result{Path: primary, Size: size, PrimaryBytes: size}

	if size >= th.EmergencyTrigger {
		logging.WarnWithContext(logger, "encoded output above emergency threshold", "emergency_compression",
			logging.String("output_size", humanize.IBytes(uint64(size))),
			logging.String("threshold", humanize.IBytes(uint64(th.EmergencyTrigger))),
			logging.Int("crf", th.EmergencyCRF),
			logging.String(logging.FieldImpact, "output re-encoded at reduced quality"),
		)
		emergency := paths.Path("emergency", ".mp4")
		cmd := procexec.Command{
			Name:    l.ffmpeg(),
			Args:    EmergencyArgs(primary, emergency, th.EmergencyCRF),
			Timeout: l.EmergencyTimeout,
			Stage:   stageName,
		}
		if _, err := l.Runner.Run(ctx, cmd); err != nil {
			return Result{}, err
		}
		emergencySize, err := procexec.VerifyOutput(stageName, emergency, th.MinOutputBytes)
		if err != nil {
			return Result{}, err
		}
		if emergencySize >= th.EmergencyReject {
			return Result{}, services.Wrap(services.ErrSizeConstraint, stageName, "emergency compression",
				fmt.Sprintf("output still %s after emergency pass (limit %s)",
					humanize.IBytes(uint64(emergencySize)), humanize.IBytes(uint64(th.EmergencyReject))), nil)
		}
		if err := os.Rename(emergency, primary); err != nil {
			return Result{}, services.Wrap(services.ErrTransient, stageName, "emergency compression", "replace primary output", err)
		}
		logger.Info("emergency compression reduced output",
			logging.String("before", humanize.IBytes(uint64(size))),
			logging.String("after", humanize.IBytes(uint64(emergencySize))),
		)
		result.Size = emergencySize
		result.Emergency = true
	}

	if result.Size >= th.AttachCeiling {
		return Result{}, services.Wrap(services.ErrSizeConstraint, stageName, "attach check",
			fmt.Sprintf("output %s exceeds attach ceiling %s",
				humanize.IBytes(uint64(result.Size)), humanize.IBytes(uint64(th.AttachCeiling))), nil)
	}
	return result, nil
}

func (l Ladder) ffmpeg() string {
	if l.FFmpeg == "" {
		return "ffmpeg"
	}
	return l.FFmpeg
}

func (l Ladder) loggerOrNop() *slog.Logger {
	if l.Logger == nil {
		return logging.NewNop()
	}
	return l.Logger
}
