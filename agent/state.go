package agent

import "fmt"

// State 定义单次执行的循环状态
type State string

const (
	StateRunning   State = "RUNNING"   // 迭代中
	StateComplete  State = "COMPLETE"  // 模型给出了最终答案
	StateExhausted State = "EXHAUSTED" // 达到迭代上限
	StateFailed    State = "FAILED"    // 不可恢复错误
)

// validTransitions 定义合法的状态转换，终态不可再转换
var validTransitions = map[State][]State{
	StateRunning: {StateComplete, StateExhausted, StateFailed},
}

// IsTerminal reports whether no further iterations run in this state.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateExhausted || s == StateFailed
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
