package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "forwarder",
		Short: "Scheduled ad forwarding with per-target health tracking",
		Long: `forwarder periodically re-posts each account's own messages to its
configured target chats, rotating through the message pool and tracking
cooldowns and failures per target.

Configuration is read from the environment (MONGO_URI, TELEGRAM_TOKEN,
BOT_OWNER_IDS, FORWARD_* ...).`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(addTargetCmd())
	rootCmd.AddCommand(removeTargetCmd())
	rootCmd.AddCommand(enableTargetCmd())
	rootCmd.AddCommand(setForwardingCmd())
	rootCmd.AddCommand(setIntervalCmd())
	rootCmd.AddCommand(bindSessionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
