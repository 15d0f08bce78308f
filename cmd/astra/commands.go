package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	astra "github.com/harry0537/AstraBackup-sub001"
	"github.com/harry0537/AstraBackup-sub001/internal/ports"
	"github.com/harry0537/AstraBackup-sub001/internal/proximity"
	"github.com/harry0537/AstraBackup-sub001/pkg/client"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadAgent(gf *GlobalFlags) (astra.Config, error) {
	cfg, err := astra.LoadConfig(gf.ConfigPath)
	if err != nil {
		return astra.Config{}, err
	}
	return cfg, nil
}

func newUpCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Start the supervised components and the local status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgent(gf)
			if err != nil {
				return err
			}
			log := astra.SetupLogging(cfg)
			if err := astra.RegisterMetrics(); err != nil {
				return err
			}
			node, err := astra.NewNode(cfg, log)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			log.Info("agent starting", "components", len(cfg.Components), "listen", cfg.Server.Listen)
			return node.Run(ctx)
		},
	}
}

func newRelayCmd(gf *GlobalFlags) *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the telemetry and image relay pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgent(gf)
			if err != nil {
				return err
			}
			log := astra.SetupLogging(cfg)
			if err := astra.RegisterMetrics(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			log.Info("relay starting", "dashboard", cfg.Dashboard.BaseURL(), "demo", demo)
			return astra.NewRelayNode(cfg, demo, log).Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "run without a vehicle link, posting placeholder telemetry")
	return cmd
}

func agentClient(listen string) *client.Client {
	return client.New(client.Config{BaseURL: "http://" + listen})
}

func newStatusCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print component and relay status from the running agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgent(gf)
			if err != nil {
				return err
			}
			resp, err := agentClient(cfg.Server.Listen).Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newEventsCmd(gf *GlobalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print recent component lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgent(gf)
			if err != nil {
				return err
			}
			events, err := agentClient(cfg.Server.Listen).Events(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), events)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to print")
	return cmd
}

func newStopCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the running agent to shut down cleanly",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgent(gf)
			if err != nil {
				return err
			}
			if err := agentClient(cfg.Server.Listen).Stop(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "shutdown requested")
			return nil
		},
	}
}

func newCaptureCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "capture <image-path>",
		Short: "Queue an image for immediate relay to the dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgent(gf)
			if err != nil {
				return err
			}
			// the relay process owns the image queue
			if err := agentClient(cfg.Server.RelayListen).Capture(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "queued", args[0])
			return nil
		},
	}
}

func newCheckCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe for attached rover hardware",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgent(gf)
			if err != nil {
				return err
			}
			roles := []ports.Role{
				ports.FlightController(cfg.Link.Port),
				ports.Lidar(""),
				ports.DepthCamera(""),
			}
			missing := 0
			out := cmd.OutOrStdout()
			for _, role := range roles {
				if path, ok := ports.Resolve(role); ok {
					_, _ = fmt.Fprintf(out, "%-18s %s\n", role.Name, path)
				} else {
					_, _ = fmt.Fprintf(out, "%-18s absent\n", role.Name)
					missing++
				}
			}
			if _, ok := proximity.Read(cfg.Proximity.Snapshot); ok {
				_, _ = fmt.Fprintf(out, "%-18s %s\n", "proximity snapshot", cfg.Proximity.Snapshot)
			} else {
				_, _ = fmt.Fprintf(out, "%-18s absent\n", "proximity snapshot")
				missing++
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d checks failed", missing, len(roles)+1)
			}
			return nil
		},
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
