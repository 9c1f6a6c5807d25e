package order

import (
	"fmt"
)

// Outcome 对账时远端状态对本地挂单的处理方式。
type Outcome int

const (
	// OutcomeKeep 仍在挂单，保持不变
	OutcomeKeep Outcome = iota
	// OutcomeFill 成交：生成 Transaction，更新仓位并移出挂单集合
	OutcomeFill
	// OutcomeRemove 终态但无成交：只移出挂单集合
	OutcomeRemove
)

func (o Outcome) String() string {
	switch o {
	case OutcomeKeep:
		return "KEEP"
	case OutcomeFill:
		return "FILL"
	case OutcomeRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// StateTransition 状态转换
type StateTransition struct {
	From Status
	To   Status
}

// StateMachine 订单状态机。只有 OPEN 可以迁出，终态不能再转换。
type StateMachine struct {
	transitions map[StateTransition]bool
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[StateTransition]bool)}
	for _, t := range []StateTransition{
		{StatusOpen, StatusFilled},
		{StatusOpen, StatusCancelled},
		{StatusOpen, StatusRejected},
	} {
		sm.transitions[t] = true
	}
	return sm
}

// ValidateTransition 验证状态转换是否合法；相同状态视为幂等。
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !sm.transitions[StateTransition{From: from, To: to}] {
		return fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}
	return nil
}

// IsFinalState 判断是否是终态
func (sm *StateMachine) IsFinalState(status Status) bool {
	switch status {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Classify 根据远端状态决定对账动作。未知状态按 OPEN 处理，
// REJECTED 等无成交终态走与 CANCELLED 相同的移除路径。
func (sm *StateMachine) Classify(remote Status) Outcome {
	switch remote {
	case StatusFilled:
		return OutcomeFill
	case StatusCancelled:
		return OutcomeRemove
	default:
		if sm.IsFinalState(remote) {
			return OutcomeRemove
		}
		return OutcomeKeep
	}
}
