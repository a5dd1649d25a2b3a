package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/duetlabs/duet"
	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/internal/mylog"
	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newCmd() *cobra.Command {
	params := &struct {
		Fresh      bool
		Turns      int
		DataDir    string
		HostsDir   string
		StatusAddr string
	}{}

	cmd := &cobra.Command{
		Use:   "duet <topic>",
		Short: "Run a steered two-host dialogue about a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logConfig := config.NewLogConfig()
			logger := mylog.NewLogger(logConfig.LogLevel, logConfig.LogHandler)

			hostA, hostB, err := loadHosts(params.HostsDir)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(params.DataDir, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create data dir")
			}

			opts := []duet.Option{
				duet.WithLogger(logger),
				duet.WithHosts(hostA, hostB),
				duet.WithDataDir(params.DataDir),
				duet.WithOutput(func(host *entity.Host, text string) {
					fmt.Printf("\n%s: %s\n", host.Name, text)
				}),
			}
			if params.Fresh {
				opts = append(opts, duet.WithFresh())
			}

			session, err := duet.NewSession(ctx, args[0], opts...)
			if err != nil {
				return err
			}
			defer session.Close()

			if params.StatusAddr != "" {
				go serveStatus(ctx, logger, session, params.StatusAddr)
			}

			return session.Run(ctx, params.Turns)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&params.Fresh, "fresh", false, "discard persisted session state before starting")
	f.IntVar(&params.Turns, "turns", 20, "number of turns to run")
	f.StringVar(&params.DataDir, "data-dir", "data", "directory for session databases and audio")
	f.StringVar(&params.HostsDir, "hosts", "hosts", "directory of host persona YAML files")
	f.StringVar(&params.StatusAddr, "status-addr", "", "address for the HTTP status endpoint, e.g. :8090")

	return cmd
}

// loadHosts reads persona YAML files from dir. The first two, in filename
// order, become the session's hosts; a missing dir falls back to built-in
// personas.
func loadHosts(dir string) (*entity.Host, *entity.Host, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		a, b := defaultHosts()
		return a, b, nil
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read hosts dir %q", dir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	if len(files) < 2 {
		return nil, nil, errors.Errorf("need at least two host files in %q, found %d", dir, len(files))
	}

	hosts := make([]*entity.Host, 0, 2)
	for _, file := range files[:2] {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to read host file %q", file)
		}
		var host entity.Host
		if err := yaml.Unmarshal(raw, &host); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to unmarshal host file %q", file)
		}
		if host.ID == "" || host.Name == "" {
			return nil, nil, errors.Errorf("host file %q must set id and name", file)
		}
		hosts = append(hosts, &host)
	}
	return hosts[0], hosts[1], nil
}

func defaultHosts() (*entity.Host, *entity.Host) {
	return &entity.Host{
			ID:       "alex",
			Name:     "Alex",
			Persona:  "A warm, fast-talking generalist who connects ideas across fields and asks a lot of questions.",
			Style:    "curious, concrete, slightly irreverent",
			Provider: "openai",
			Model:    "gpt-4o",
			Voice:    "alloy",
		}, &entity.Host{
			ID:       "sam",
			Name:     "Sam",
			Persona:  "A dry, skeptical analyst who wants numbers and second-order effects before agreeing with anything.",
			Style:    "measured, precise, quietly funny",
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
			Voice:    "onyx",
		}
}
