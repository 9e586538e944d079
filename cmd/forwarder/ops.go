package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ads_forwarder/internal/app"
	"ads_forwarder/internal/config"
	"ads_forwarder/internal/forwarder/service"
	"ads_forwarder/internal/logger"

	"github.com/spf13/cobra"
)

const opTimeout = 30 * time.Second

// withControl 初始化应用（不启动调度）并执行一次运维操作
func withControl(fn func(ctx context.Context, control service.ControlService) error) error {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer application.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return fn(ctx, application.Control)
}

func parseAccountID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", s)
	}
	return id, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <account_id>",
		Short: "Show forwarding status, sessions, pool and target health",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return withControl(func(ctx context.Context, control service.ControlService) error {
				status, err := control.Snapshot(ctx, accountID)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderStatus(status, time.Now()))
				return nil
			})
		},
	}
}

func addTargetCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "add-target <account_id> <target>",
		Short: "Add a target chat (@username or numeric chat id)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return withControl(func(ctx context.Context, control service.ControlService) error {
				target, err := control.AddTarget(ctx, accountID, args[1], title)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Added target %s\n", target.TargetID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Display name for the target")
	return cmd
}

func removeTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-target <account_id> <target>",
		Short: "Remove a target chat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return withControl(func(ctx context.Context, control service.ControlService) error {
				if err := control.RemoveTarget(ctx, accountID, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed target %s\n", args[1])
				return nil
			})
		},
	}
}

func enableTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable-target <account_id> <target>",
		Short: "Re-enable a target and reset its failure count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return withControl(func(ctx context.Context, control service.ControlService) error {
				if err := control.EnableTarget(ctx, accountID, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Enabled target %s\n", args[1])
				return nil
			})
		},
	}
}

func setForwardingCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set-forwarding <account_id> <on|off>",
		Short:     "Turn automatic forwarding on or off",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			var enabled bool
			switch strings.ToLower(args[1]) {
			case "on", "true", "1":
				enabled = true
			case "off", "false", "0":
				enabled = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			return withControl(func(ctx context.Context, control service.ControlService) error {
				if err := control.SetForwarding(ctx, accountID, enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Forwarding %s for account %d\n", strings.ToLower(args[1]), accountID)
				return nil
			})
		},
	}
}

func setIntervalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-interval <account_id> <30|45|60>",
		Short: "Set the per-target resend interval in minutes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid interval %q", args[1])
			}
			return withControl(func(ctx context.Context, control service.ControlService) error {
				if err := control.SetInterval(ctx, accountID, minutes); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Interval set to %d minutes\n", minutes)
				return nil
			})
		},
	}
}

func bindSessionCmd() *cobra.Command {
	var (
		username     string
		slot         int
		sourceChatID int64
	)

	cmd := &cobra.Command{
		Use:   "bind-session <account_id> <token>",
		Short: "Store a session credential in a slot (replaces the slot's previous credential)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			binding := service.SessionBinding{
				AccountID:    accountID,
				Username:     username,
				Slot:         slot,
				Token:        args[1],
				SourceChatID: sourceChatID,
			}
			return withControl(func(ctx context.Context, control service.ControlService) error {
				if err := control.BindSession(ctx, binding); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Bound slot %d for account %d\n", slot, accountID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Account username")
	cmd.Flags().IntVar(&slot, "slot", 1, "Session slot (1-based)")
	cmd.Flags().Int64Var(&sourceChatID, "source-chat", 0, "Chat whose posts form the message pool")
	return cmd
}
