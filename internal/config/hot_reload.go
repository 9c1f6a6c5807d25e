package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	appcfg "live-trader-go/config"
	"live-trader-go/infrastructure/logger"
	"live-trader-go/retry"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled      bool          // 是否启用热更新
	CooldownTime time.Duration // 冷却时间，避免编辑器连续写入触发多次加载
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:      true,
		CooldownTime: 5 * time.Second,
	}
}

// RetryApplier 接收新的重试预算，执行循环实现该接口。
type RetryApplier interface {
	SetRetryBudget(b retry.Budget, escalateAfter int) error
}

// HotReloader 监听配置文件，只把 retry 段应用到运行中的组件。
// 其余字段的修改需要重启进程。
type HotReloader struct {
	config     HotReloadConfig
	configPath string
	watcher    *fsnotify.Watcher
	appliers   []RetryApplier
	log        *logger.Logger
	lastReload time.Time
	mu         sync.Mutex
	stopOnce   sync.Once
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewHotReloader 创建热更新器
func NewHotReloader(configPath string, cfg HotReloadConfig, log *logger.Logger) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &HotReloader{
		config:     cfg,
		configPath: filepath.Clean(configPath),
		watcher:    watcher,
		log:        log.Named("hot_reload"),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// Register 注册重试预算接收方
func (h *HotReloader) Register(a RetryApplier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appliers = append(h.appliers, a)
}

// Start 启动热更新监听。监听所在目录，以兼容先写临时文件再改名的编辑器。
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		close(h.doneChan)
		return nil
	}
	if err := h.watcher.Add(filepath.Dir(h.configPath)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	go h.watch(ctx)
	h.log.Info("watching config", zap.String("path", h.configPath))
	return nil
}

// Stop 停止热更新
func (h *HotReloader) Stop() error {
	h.stopOnce.Do(func() { close(h.stopChan) })
	select {
	case <-h.doneChan:
	case <-time.After(time.Second):
		// watch goroutine 没有启动
	}
	return h.watcher.Close()
}

// Health 监听 goroutine 存活
func (h *HotReloader) Health() error {
	if !h.config.Enabled {
		return nil
	}
	select {
	case <-h.doneChan:
		return fmt.Errorf("config watcher stopped")
	default:
		return nil
	}
}

func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.configPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.handleConfigChange()
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (h *HotReloader) handleConfigChange() {
	h.mu.Lock()
	cooling := time.Since(h.lastReload) < h.config.CooldownTime
	h.mu.Unlock()
	if cooling {
		return
	}
	if err := h.Reload(); err != nil {
		h.log.LogError(err, map[string]interface{}{"action": "reload", "path": h.configPath})
	}
}

// Reload 重新读取配置文件并应用 retry 段。配置非法时不做任何修改。
func (h *HotReloader) Reload() error {
	cfg, err := appcfg.Load(h.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range h.appliers {
		if err := a.SetRetryBudget(cfg.Retry.Budget, cfg.Retry.EscalateAfter); err != nil {
			return fmt.Errorf("apply retry budget: %w", err)
		}
	}
	h.lastReload = time.Now()
	h.log.Info("config reloaded", zap.String("path", h.configPath), zap.Int("appliers", len(h.appliers)))
	return nil
}

// GetLastReloadTime 获取最后重载时间
func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReload
}
