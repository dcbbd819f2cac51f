package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FuzzFileConfigTOML feeds random-ish fields into a tiny TOML and ensures
// the loader does not panic and keeps its constraints.
func FuzzFileConfigTOML(f *testing.F) {
	f.Add("/var/lib/punchd", "127.0.0.1:8412", "/api", "60s")
	f.Add("", "", "api", "banana")

	f.Fuzz(func(t *testing.T, dataDir string, listen string, basePath string, idle string) {
		sanitize := func(s string) string {
			s = strings.ReplaceAll(s, "\"", "")
			s = strings.ReplaceAll(s, "\n", "")
			s = strings.ReplaceAll(s, "\r", "")
			return strings.ReplaceAll(s, "\\", "")
		}
		dataDir = sanitize(dataDir)
		listen = sanitize(listen)
		basePath = sanitize(basePath)
		idle = sanitize(idle)

		b := strings.Builder{}
		if dataDir != "" {
			b.WriteString("data_dir = \"" + dataDir + "\"\n")
		}
		b.WriteString("[server]\n")
		b.WriteString("listen = \"" + listen + "\"\n")
		b.WriteString("base_path = \"" + basePath + "\"\n")
		b.WriteString("[tracker]\n")
		b.WriteString("idle_threshold = \"" + idle + "\"\n")

		file := filepath.Join(t.TempDir(), "punchd.toml")
		if err := os.WriteFile(file, []byte(b.String()), 0o644); err != nil {
			t.Fatalf("write toml: %v", err)
		}

		fc, err := Load(file)
		if err != nil {
			return
		}
		if !strings.HasPrefix(fc.Server.BasePath, "/") {
			t.Fatalf("accepted base_path without slash: %q", fc.Server.BasePath)
		}
		if fc.Server.Listen == "" {
			t.Fatal("listen left empty after load")
		}
	})
}
