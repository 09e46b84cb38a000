package core

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// InitLogging installs a tint console handler as the default slog logger.
// verbosity follows the CLI's repeated -v flag: 0 is info-and-above, and
// any higher count is debug. The remote agent always calls this with 0.
func InitLogging(w *os.File, verbosity int) {
	level := slog.LevelInfo
	if verbosity > 0 {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		}),
	))
}
