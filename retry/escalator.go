package retry

import "sync"

// Escalator 统计连续完全降级的 tick 数，达到阈值后要求升级处理。
// 阈值为 0 时从不升级。
type Escalator struct {
	threshold   int
	consecutive int
	mu          sync.Mutex
}

func NewEscalator(threshold int) *Escalator {
	if threshold < 0 {
		threshold = 0
	}
	return &Escalator{threshold: threshold}
}

// Record 记录一个 tick 的结果，返回是否达到升级阈值。
func (e *Escalator) Record(degraded bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !degraded {
		e.consecutive = 0
		return false
	}
	e.consecutive++
	return e.threshold > 0 && e.consecutive >= e.threshold
}

// SetThreshold 热更新阈值，不清空已有计数。
func (e *Escalator) SetThreshold(threshold int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if threshold < 0 {
		threshold = 0
	}
	e.threshold = threshold
}

func (e *Escalator) Consecutive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutive
}
