package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mockpilot/mesh/codegen"
	"github.com/mockpilot/mesh/insights"
	"github.com/mockpilot/mesh/intent"
	"github.com/mockpilot/mesh/mapper"
	"github.com/mockpilot/mesh/orchestrator"
	"github.com/mockpilot/mesh/shared/bus"
	"github.com/mockpilot/mesh/stt"
	"github.com/mockpilot/mesh/trigger"
)

const shutdownTimeout = 30 * time.Second

// httpService is what the serve loop needs from an HTTP-serving service.
type httpService interface {
	Start() error
	Stop(ctx context.Context) error
}

// connectBus builds the bus client and blocks until redis is reachable.
func connectBus(ctx context.Context, redisURL string) (*bus.Client, error) {
	busClient, err := bus.New(redisURL)
	if err != nil {
		return nil, fmt.Errorf("bus client: %w", err)
	}
	if err := busClient.WaitReady(ctx); err != nil {
		busClient.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return busClient, nil
}

// runHTTPService starts the server, optionally runs a bus loop alongside it,
// and shuts both down on SIGINT/SIGTERM.
func runHTTPService(ctx context.Context, svc httpService, busLoop func(context.Context)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- svc.Start()
	}()
	if busLoop != nil {
		go busLoop(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigChan:
		slog.Info("mesh: received signal, shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := svc.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// runBusService blocks on a bus subscription loop until a signal arrives.
func runBusService(ctx context.Context, loop func(context.Context)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		loop(ctx)
		close(done)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
		return nil
	case sig := <-sigChan:
		slog.Info("mesh: received signal, shutting down", "signal", sig.String())
		cancel()
		<-done
		return nil
	}
}

func orchestratorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orchestrator",
		Short: "Run the session orchestrator (REST + client WebSocket)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := orchestrator.LoadConfig()
			busClient, err := connectBus(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return err
			}
			defer busClient.Close()

			server := orchestrator.NewServer(cfg, busClient)
			return runHTTPService(cmd.Context(), server, server.RunFanout)
		},
	}
}

func sttCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stt",
		Short: "Run the streaming speech-to-text service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := stt.LoadConfig()
			busClient, err := connectBus(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return err
			}
			defer busClient.Close()

			server, err := stt.NewServer(cfg, busClient)
			if err != nil {
				return fmt.Errorf("stt server: %w", err)
			}
			return runHTTPService(cmd.Context(), server, nil)
		},
	}
}

func mapperCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mapper",
		Short: "Run the design mapper service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mapper.LoadConfig()
			server, err := mapper.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("mapper server: %w", err)
			}
			return runHTTPService(cmd.Context(), server, nil)
		},
	}
}

func triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Run the design trigger service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := trigger.LoadConfig()
			busClient, err := connectBus(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return err
			}
			defer busClient.Close()

			svc := trigger.NewService(cfg, busClient)
			return runBusService(cmd.Context(), svc.Run)
		},
	}
}

func intentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "intent",
		Short: "Run the intent extraction service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := intent.LoadConfig()
			busClient, err := connectBus(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return err
			}
			defer busClient.Close()

			svc := intent.NewService(cfg, busClient)
			return runBusService(cmd.Context(), svc.Run)
		},
	}
}

func codegenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "codegen",
		Short: "Run the component generator service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := codegen.LoadConfig()
			busClient, err := connectBus(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return err
			}
			defer busClient.Close()

			server := codegen.NewServer(cfg, busClient)
			return runHTTPService(cmd.Context(), server, server.RunConsumer)
		},
	}
}

func insightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insights",
		Short: "Run the audience insight miner",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := insights.LoadConfig()
			busClient, err := connectBus(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return err
			}
			defer busClient.Close()

			svc := insights.NewService(cfg, busClient)
			return runBusService(cmd.Context(), svc.Run)
		},
	}
}
