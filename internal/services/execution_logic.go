package services

import "sync"

// ExecutionLogic carries the settlement parameters that can be swapped at
// runtime: the slippage window applied when validating oracle results.
// Zero basis points on both sides disables the slippage check.
type ExecutionLogic struct {
	Version       string
	SlippageMinBP uint32
	SlippageMaxBP uint32
}

// LogicHandle is the shared, upgradeable reference to the current
// ExecutionLogic. Every request registry dereferences the same handle, so
// one upgrade takes effect for all assets at once.
type LogicHandle struct {
	mu    sync.RWMutex
	logic ExecutionLogic
}

func NewLogicHandle(logic ExecutionLogic) *LogicHandle {
	return &LogicHandle{logic: logic}
}

// Current returns the logic in effect.
func (h *LogicHandle) Current() ExecutionLogic {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.logic
}

// Upgrade replaces the logic in effect.
func (h *LogicHandle) Upgrade(logic ExecutionLogic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logic = logic
}
