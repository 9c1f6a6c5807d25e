package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"live-trader-go/config"
	"live-trader-go/internal/container"
	"live-trader-go/strategy"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "live",
		Short:         "Run a trading strategy against a live or paper exchange",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "configs/live.yaml", "配置文件路径")
	root.AddCommand(newRunCmd(), newValidateCmd(), newStrategiesCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the execution loop until interrupted",
		RunE:  run,
	}
	cmd.Flags().Bool("paper", false, "使用模拟交易所，忽略 exchange.name")
	cmd.Flags().String("strategy", "", "覆盖 strategy.name")
	cmd.Flags().String("asset", "", "覆盖 strategy.asset")
	cmd.Flags().String("metrics-addr", "", "覆盖 metrics.addr")
	cmd.Flags().String("report", "", "最终报告 CSV 路径，覆盖 report.csvPath")
	return cmd
}

// overrides 把非空的命令行参数转换为配置覆盖
func overrides(cmd *cobra.Command) ([]config.Override, error) {
	var res []config.Override
	paper, err := cmd.Flags().GetBool("paper")
	if err != nil {
		return nil, err
	}
	if paper {
		res = append(res, func(c *config.AppConfig) { c.Exchange.Name = "paper" })
	}
	for flag, apply := range map[string]func(*config.AppConfig, string){
		"strategy":     func(c *config.AppConfig, v string) { c.Strategy.Name = v },
		"asset":        func(c *config.AppConfig, v string) { c.Strategy.Asset = v },
		"metrics-addr": func(c *config.AppConfig, v string) { c.Metrics.Addr = v },
		"report":       func(c *config.AppConfig, v string) { c.Report.CSVPath = v },
	} {
		v, err := cmd.Flags().GetString(flag)
		if err != nil {
			return nil, err
		}
		if v != "" {
			res = append(res, func(c *config.AppConfig) { apply(c, v) })
		}
	}
	return res, nil
}

func run(cmd *cobra.Command, _ []string) error {
	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	ovr, err := overrides(cmd)
	if err != nil {
		return err
	}

	var (
		c      *container.Container
		failed atomic.Bool
	)
	exit := func(code int) {
		if failed.Load() && code == 0 {
			code = 1
		}
		_ = c.Stop()
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
		os.Exit(code)
	}

	c, err = container.New(container.Options{ConfigPath: cfgPath, Overrides: ovr, Exit: exit})
	if err != nil {
		return err
	}
	if err := c.Build(); err != nil {
		return err
	}
	log := c.Logger()

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		_, _ = c.Shutdown("signal " + sig.String())
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify failed", zap.Error(err))
	} else if sent {
		log.Info("notified systemd")
	}

	cfg := c.Config()
	log.Info("live trading started",
		zap.String("exchange", cfg.Exchange.Name),
		zap.String("strategy", cfg.Strategy.Name),
		zap.String("asset", cfg.Strategy.Asset))

	reason := "finished"
	if err := c.Run(ctx); err != nil {
		failed.Store(true)
		reason = err.Error()
		log.Error("execution loop stopped", zap.Error(err))
	}
	_, _ = c.Shutdown(reason)
	return nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.LoadWithEnvOverrides(cfgPath)
			if err != nil {
				var invalid config.ErrInvalid
				if errors.As(err, &invalid) {
					return fmt.Errorf("invalid config %s: %w", cfgPath, err)
				}
				return err
			}
			if _, err := strategy.New(cfg.Strategy.Name, cfg.Strategy.Asset, cfg.Strategy.Params); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: exchange=%s strategy=%s asset=%s\n",
				cfg.Exchange.Name, cfg.Strategy.Name, cfg.Strategy.Asset)
			return nil
		},
	}
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List available strategies",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(strategy.Names(), "\n"))
		},
	}
}
