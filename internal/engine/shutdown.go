package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"live-trader-go/infrastructure/logger"
	"live-trader-go/perf"
)

// ShutdownHandler 停止执行循环、汇总快照为最终报告并交给分析器，最后退出进程。
// 只执行一次，重复调用会等待第一次完成。
type ShutdownHandler struct {
	// Timeout 等待进行中的 tick 结束的上限
	Timeout time.Duration

	algo     *Algorithm
	analyzer perf.Analyzer
	exit     func(code int)
	log      *logger.Logger

	once   sync.Once
	report perf.Report
	err    error
}

// NewShutdownHandler exit 为 nil 时不退出进程。
func NewShutdownHandler(algo *Algorithm, analyzer perf.Analyzer, exit func(code int), log *logger.Logger) *ShutdownHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ShutdownHandler{
		Timeout:  time.Minute,
		algo:     algo,
		analyzer: analyzer,
		exit:     exit,
		log:      log.Named("shutdown"),
	}
}

// Handle 可在任意时刻调用，包括对账进行中。
func (h *ShutdownHandler) Handle(reason string) (perf.Report, error) {
	h.once.Do(func() {
		h.log.Info("shutting down", zap.String("reason", reason))
		h.algo.Stop()
		if !h.algo.Wait(h.Timeout) {
			h.log.Warn("in-flight tick did not finish before timeout", zap.Duration("timeout", h.Timeout))
		}

		h.report = perf.Finalize(h.algo.Snapshots())
		h.log.Info("final report assembled", zap.Int("periods", h.report.Len()))
		if h.analyzer != nil {
			if err := h.analyzer.Analyze(h.report); err != nil {
				h.err = err
				h.log.Error("analyze failed", zap.Error(err))
			}
		}
		_ = h.log.Sync()

		if h.exit != nil {
			code := 0
			if h.err != nil {
				code = 1
			}
			h.exit(code)
		}
	})
	return h.report, h.err
}
