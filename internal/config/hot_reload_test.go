package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-trader-go/retry"
)

const baseConfig = `
env: dev
exchange:
  name: paper
  baseCurrency: usd
retry:
  updatePortfolio: %d
  delay: 1s
  escalateAfter: 2
strategy:
  name: buy_and_hold
  asset: btc_usd
`

// recordingApplier 记录收到的预算
type recordingApplier struct {
	mu       sync.Mutex
	budgets  []retry.Budget
	escalate int
	err      error
}

func (r *recordingApplier) SetRetryBudget(b retry.Budget, escalateAfter int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.budgets = append(r.budgets, b)
	r.escalate = escalateAfter
	return nil
}

func (r *recordingApplier) last() (retry.Budget, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.budgets) == 0 {
		return retry.Budget{}, 0, 0
	}
	return r.budgets[len(r.budgets)-1], r.escalate, len(r.budgets)
}

func writeConfig(t *testing.T, path string, updatePortfolio int) {
	t.Helper()
	content := []byte(fmt.Sprintf(baseConfig, updatePortfolio))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func newTestReloader(t *testing.T, cooldown time.Duration) (*HotReloader, string, *recordingApplier) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "live.yaml")
	writeConfig(t, path, 3)
	h, err := NewHotReloader(path, HotReloadConfig{Enabled: true, CooldownTime: cooldown}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Stop() })
	app := &recordingApplier{}
	h.Register(app)
	return h, path, app
}

func TestReloadAppliesRetrySection(t *testing.T) {
	h, _, app := newTestReloader(t, 0)
	require.NoError(t, h.Reload())

	b, escalate, n := app.last()
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, b.UpdatePortfolio)
	assert.Equal(t, 5, b.CheckOpenOrders)
	assert.Equal(t, time.Second, b.Delay)
	assert.Equal(t, 2, escalate)
	assert.False(t, h.GetLastReloadTime().IsZero())
}

func TestReloadRejectsInvalidConfig(t *testing.T) {
	h, path, app := newTestReloader(t, 0)
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  delay: -1s\n"), 0o644))

	assert.Error(t, h.Reload())
	_, _, n := app.last()
	assert.Equal(t, 0, n)
	assert.True(t, h.GetLastReloadTime().IsZero())
}

func TestReloadApplierError(t *testing.T) {
	h, _, app := newTestReloader(t, 0)
	app.err = errors.New("boom")
	assert.ErrorContains(t, h.Reload(), "boom")
}

func TestWatchPicksUpWrites(t *testing.T) {
	h, path, app := newTestReloader(t, 0)
	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Health())

	writeConfig(t, path, 7)
	require.Eventually(t, func() bool {
		b, _, _ := app.last()
		return b.UpdatePortfolio == 7
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	h, path, app := newTestReloader(t, 0)
	require.NoError(t, h.Start(context.Background()))

	other := filepath.Join(filepath.Dir(path), "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("x: 1"), 0o644))
	time.Sleep(200 * time.Millisecond)
	_, _, n := app.last()
	assert.Equal(t, 0, n)
}

func TestStopEndsWatcher(t *testing.T) {
	h, _, _ := newTestReloader(t, 0)
	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Stop())
	assert.Error(t, h.Health())
}

func TestDisabledReloader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.yaml")
	writeConfig(t, path, 3)
	h, err := NewHotReloader(path, HotReloadConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	assert.NoError(t, h.Health())
	assert.NoError(t, h.Stop())
}
