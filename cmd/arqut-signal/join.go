package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphan267/arqut-signal/apis"
	"github.com/tphan267/arqut-signal/pkg/config"
	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/providers"
	"github.com/tphan267/arqut-signal/pkg/providers/call"
	"github.com/tphan267/arqut-signal/pkg/providers/journal"
	"github.com/tphan267/arqut-signal/pkg/signaling"
	"github.com/tphan267/arqut-signal/pkg/storage"
	"github.com/tphan267/arqut-signal/pkg/utils"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var (
	flagRoom    string
	flagMessage string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room on the relay and negotiate a call with the other occupant",
	Long: `Join a room on the relay and negotiate a WebRTC call with the other occupant.

Examples:
  arqut-signal join
  arqut-signal join --room kitchen
  arqut-signal join --config /etc/arqut/config.yaml --loglevel debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, appLogger, err := loadConfig()
		if err != nil {
			return err
		}
		if flagRoom != "" {
			cfg.Room = flagRoom
		}
		return runJoin(cmd.Context(), cmd.OutOrStdout(), cfg, appLogger)
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "Room to join (overrides the config file)")
	joinCmd.Flags().StringVarP(&flagMessage, "message", "m", "", "Text sent to the other occupant when the data channel opens")
}

func runJoin(ctx context.Context, out io.Writer, cfg *config.Config, appLogger *logger.Logger) error {
	appLogger.Info("Starting arqut-signal %s", cfg.Version)

	security, err := cfg.SecurityConfig()
	if err != nil {
		return err
	}
	codec, err := signaling.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}

	conn, err := signaling.NewConnection(cfg.RelayURL, security,
		signaling.WithCodec(codec),
		signaling.WithLogger(appLogger),
	)
	if err != nil {
		return err
	}
	sigClient, err := signaling.NewClient(conn, cfg.Room, appLogger)
	if err != nil {
		return err
	}
	defer sigClient.Close()

	store, err := storage.NewSQLiteStorage(cfg.DBPath, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	registry := createServiceRegistry(store, appLogger, cfg, sigClient)
	if err := registry.InitializeAll(ctx); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := registry.Shutdown(context.Background()); err != nil {
			appLogger.Error("Service shutdown error: %v", err)
		}
	}()
	if err := registry.StartRunnable(ctx); err != nil {
		return fmt.Errorf("failed to start runnable services: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.APIAddr != "" {
		if cfg.APIToken != "" {
			appLogger.Info("[API] Bearer token required: %s", utils.MaskSecret(cfg.APIToken))
		}
		srv := apis.New(registry, cfg.APIToken)
		if err := registry.RegisterAllRoutes(srv.API()); err != nil {
			return fmt.Errorf("failed to register service routes: %w", err)
		}
		g.Go(func() error {
			return srv.Start(cfg.APIAddr)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var ended <-chan struct{}
	var peer *call.Peer
	if svc, err := registry.Get("call"); err == nil {
		if callSvc, ok := svc.(*call.Service); ok && callSvc.Peer() != nil {
			peer = callSvc.Peer()
			ended = peer.Done()
			attachConsole(peer, out, flagMessage, appLogger)
		}
	}

	g.Go(func() error {
		// The connection outlives gctx; Close below tears it down without
		// reporting a lost connection.
		if err := sigClient.Join(context.WithoutCancel(gctx)); err != nil {
			return err
		}
		select {
		case <-gctx.Done():
			sigClient.Close()
			return nil
		case <-ended:
			return peer.Err()
		}
	})

	err = g.Wait()
	appLogger.Info("Shutting down...")
	if errors.Is(err, call.ErrRoomFull) {
		return fmt.Errorf("room %s is full", cfg.Room)
	}
	return err
}

// attachConsole prints data channel text to out and sends message, when set,
// each time the data channel opens.
func attachConsole(peer *call.Peer, out io.Writer, message string, appLogger *logger.Logger) {
	peer.OnMessage(func(text string) {
		fmt.Fprintf(out, "peer: %s\n", text)
	})
	if message == "" {
		return
	}
	peer.OnOpen(func() {
		if err := peer.SendText(message); err != nil {
			appLogger.Warn("[Call] Failed to send message: %v", err)
		}
	})
}

// createServiceRegistry registers the journal before the call service so the
// call handler is wrapped by the recorder
func createServiceRegistry(store storage.Storage, log *logger.Logger, cfg *config.Config, sigClient *signaling.Client) *providers.Registry {
	registry := providers.NewRegistry(store, log, cfg, sigClient)

	registry.MustRegister(journal.NewService())
	registry.MustRegister(call.NewService())

	return registry
}
