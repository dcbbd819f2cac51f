package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/punchd/punchd/internal/logger"
)

// embedded_logger: demonstrate the daemon's logger setup with a rotating
// file destination. It logs a few lines and shows where they are stored.
func main() {
	// Determine log directory: use PUNCHD_LOG_DIR if set, otherwise a temp directory.
	logDir := os.Getenv("PUNCHD_LOG_DIR")
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), fmt.Sprintf("punchd-logs-%d", time.Now().UnixNano()))
	}
	_ = os.MkdirAll(logDir, 0o750)

	log, closer, err := logger.New(logger.Config{
		Level:     "debug",
		Dir:       logDir,
		MaxSizeMB: 5,
		Compress:  true,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = closer.Close() }()

	log.Info("tracking started", "logId", "log-42", "taskId", "task-7")
	log.Debug("heartbeat written", "lastActiveAt", time.Now().UnixMilli())
	log.Warn("gap absorbed", "gapMs", 4200)

	fmt.Println("Embedded logger example")
	fmt.Println("  Log directory:", logDir)
	fmt.Println("  Log file:", filepath.Join(logDir, "punchd.log"))
	fmt.Println("Tip: set PUNCHD_LOG_DIR to choose a custom log directory.")
}
