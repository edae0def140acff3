package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tphan267/arqut-signal/pkg/relay"
	"github.com/tphan267/arqut-signal/pkg/utils"
)

var flagAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a room relay for two-occupant signaling",
	RunE: func(cmd *cobra.Command, args []string) error {
		appLogger, err := newLogger(flagLogLevel)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return relay.NewServer(appLogger).ListenAndServe(ctx, flagAddr)
	},
}

func init() {
	relayCmd.Flags().StringVarP(&flagAddr, "addr", "a", utils.Env("ARQUT_RELAY_ADDR", ":8080"), "Address to listen on")
}
