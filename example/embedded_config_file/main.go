package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/punchd/punchd"
)

// This example loads a TOML config file and boots a tracker from it using
// the public punchd facade, the same way 'punchd serve' does.
func main() {
	cfgPath := os.Getenv("PUNCHD_CONFIG")
	if cfgPath == "" {
		cfgPath = filepath.Join("config", "punchd.toml")
	}

	cfg, err := punchd.LoadConfig(cfgPath)
	if err != nil {
		// No file is fine for a demo: fall back to the built-in defaults.
		cfg, err = punchd.DefaultConfig()
		if err != nil {
			panic(err)
		}
		fmt.Println("no config file, using defaults")
	}

	trk, err := punchd.New(cfg.DataDir, cfg.TrackerSettings(), nil)
	if err != nil {
		panic(err)
	}
	defer func() { _ = trk.Close() }()
	trk.Startup()

	// Journal sinks come straight from the config DSN list.
	for _, dsn := range cfg.Journal.DSNs {
		snk, err := punchd.NewSinkFromDSN(dsn)
		if err != nil {
			panic(err)
		}
		trk.SetJournalSinks(snk)
	}

	b, _ := json.MarshalIndent(map[string]any{
		"dataDir":    cfg.DataDir,
		"listen":     cfg.Server.Listen,
		"basePath":   cfg.Server.BasePath,
		"instanceId": trk.InstanceID(),
		"status":     trk.Status(),
	}, "", "  ")
	fmt.Println(string(b))
}
