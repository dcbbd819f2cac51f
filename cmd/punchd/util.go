package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"
)

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// quietLogger discards client-internal logging; CLI errors surface through
// return values instead.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// formatHMS renders a duration as hh:mm:ss.
func formatHMS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
