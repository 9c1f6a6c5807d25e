package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-trader-go/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStrategiesCommand(t *testing.T) {
	out, err := execute(t, "strategies")
	require.NoError(t, err)
	assert.Contains(t, out, "buy_and_hold")
	assert.Contains(t, out, "buy_the_dip")
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exchange:\n  name: paper\nstrategy:\n  name: buy_the_dip\n  asset: eth_usd\n"), 0o644))

	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "exchange=paper strategy=buy_the_dip asset=eth_usd")

	require.NoError(t, os.WriteFile(path, []byte("exchange:\n  name: paper\nstrategy:\n  name: grid\n"), 0o644))
	_, err = execute(t, "validate", "-c", path)
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestRunFlagsBecomeOverrides(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--paper", "--strategy", "buy_and_hold", "--report", "out.csv"}))
	ovr, err := overrides(cmd)
	require.NoError(t, err)
	assert.Len(t, ovr, 3)

	cfg := config.Default()
	for _, o := range ovr {
		o(&cfg)
	}
	assert.Equal(t, "paper", cfg.Exchange.Name)
	assert.Equal(t, "buy_and_hold", cfg.Strategy.Name)
	assert.Equal(t, "out.csv", cfg.Report.CSVPath)
	assert.Equal(t, "btc_usd", cfg.Strategy.Asset)
}
