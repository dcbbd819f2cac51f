package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/punchd/punchd/internal/platform"
	"github.com/punchd/punchd/pkg/client"
)

type command struct{}

// newClient builds an API client for one CLI invocation. An empty URL means
// the local daemon.
func (c command) newClient(apiURL string, timeout time.Duration) *client.Client {
	cfg := client.DefaultConfig()
	if apiURL != "" {
		cfg.BaseURL = apiURL
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	cfg.Logger = quietLogger()
	return client.New(cfg)
}

// dial returns a client after verifying the daemon answers.
func (c command) dial(apiURL string, timeout time.Duration) (*client.Client, error) {
	api := c.newClient(apiURL, timeout)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if !api.IsReachable(ctx) {
		if apiURL == "" {
			apiURL = client.DefaultConfig().BaseURL
		}
		return nil, fmt.Errorf("daemon not reachable at %s - start it with 'punchd serve'", apiURL)
	}
	return api, nil
}

// Start begins tracking a log entry via the daemon API
func (c command) Start(f StartFlags) error {
	api, err := c.dial(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}

	id, err := api.Start(context.Background(), f.LogID, f.TaskID)
	if err != nil {
		return err
	}
	fmt.Printf("Tracking %s (instance %s)\n", f.LogID, id)
	return nil
}

// Stop ends the running session, optionally submitting the idle total
func (c command) Stop(f StopFlags) error {
	api, err := c.dial(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}

	var reported *uint64
	if f.ReportIdle {
		v := f.IdleSeconds
		reported = &v
	}
	if err := api.Stop(context.Background(), reported); err != nil {
		return err
	}
	if reported != nil {
		fmt.Printf("Tracking stopped (%d idle seconds submitted)\n", *reported)
	} else {
		fmt.Println("Tracking stopped")
	}
	return nil
}

// Status prints the daemon's record and session as JSON
func (c command) Status(f QueryFlags) error {
	api, err := c.dial(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}

	st, err := api.Status(context.Background())
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

// Reconcile triggers an immediate gap check
func (c command) Reconcile(f QueryFlags) error {
	api, err := c.dial(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}

	if err := api.Reconcile(context.Background()); err != nil {
		return err
	}
	fmt.Println("Reconcile completed")
	return nil
}

// InstanceID prints the daemon's install identifier
func (c command) InstanceID(f QueryFlags) error {
	api, err := c.dial(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}

	id, err := api.InstanceID(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// Events prints recent journal events as JSON
func (c command) Events(f EventsFlags) error {
	api, err := c.dial(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}

	events, err := api.Events(context.Background(), f.Limit)
	if err != nil {
		return err
	}
	printJSON(events)
	return nil
}

// Autostart installs or removes the login item that launches the daemon
func (c command) Autostart(action, configPath string) error {
	svc := platform.NewService()
	switch action {
	case "enable":
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		args := []string{"serve"}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		if err := svc.EnableAutostart(exe, args...); err != nil {
			return err
		}
		fmt.Println("Autostart enabled")
	case "disable":
		if err := svc.DisableAutostart(); err != nil {
			return err
		}
		fmt.Println("Autostart disabled")
	default:
		return fmt.Errorf("unknown action %q (want enable or disable)", action)
	}
	return nil
}
