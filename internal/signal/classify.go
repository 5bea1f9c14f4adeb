package signal

import (
	"regexp"
	"strings"
)

// Action identifiers produced by classification.
const (
	ActionBreakEven      = "break_even"
	ActionStopLossUpdate = "stop_loss_update"
	ActionStopLossHit    = "stop_loss_hit"
	ActionProfitClose    = "profit_close"
	ActionTakeProfit     = "take_profit" // take_profit_N collapses here; N in ParsedAction
	ActionLimitCancelled = "limit_order_cancelled"
	ActionUnknown        = "unknown"
)

var takeProfitN = regexp.MustCompile(`take[\s_-]?profit[\s_-]?(\d+)`)

// Classify returns the action for an alert, preferring the upstream parse and
// falling back to textual heuristics over the raw content.
func Classify(a *Alert) string {
	if a.Parsed != nil && a.Parsed.ActionType != "" {
		return normalizeAction(a.Parsed.ActionType)
	}
	return classifyText(a.Content)
}

func normalizeAction(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if takeProfitN.MatchString(t) || t == "take_profit" {
		return ActionTakeProfit
	}
	switch t {
	case ActionBreakEven, ActionStopLossUpdate, ActionStopLossHit,
		ActionProfitClose, ActionLimitCancelled:
		return t
	}
	return ActionUnknown
}

func classifyText(content string) string {
	c := strings.ToLower(content)
	switch {
	case strings.Contains(c, "break even") || strings.Contains(c, "breakeven") ||
		strings.Contains(c, "break-even") || strings.Contains(c, "sl to entry"):
		return ActionBreakEven
	case strings.Contains(c, "stoploss hit") || strings.Contains(c, "stop loss hit") ||
		strings.Contains(c, "sl hit") || strings.Contains(c, "stopped out"):
		return ActionStopLossHit
	case takeProfitN.MatchString(c) || strings.Contains(c, "tp1") ||
		strings.Contains(c, "tp2") || strings.Contains(c, "tp3"):
		return ActionTakeProfit
	case strings.Contains(c, "close in profit") || strings.Contains(c, "closed in profit") ||
		strings.Contains(c, "take profit") || strings.Contains(c, "all targets"):
		return ActionProfitClose
	case strings.Contains(c, "cancel") && (strings.Contains(c, "limit") || strings.Contains(c, "order")):
		return ActionLimitCancelled
	case strings.Contains(c, "move sl") || strings.Contains(c, "move stop") ||
		strings.Contains(c, "sl to") || strings.Contains(c, "new sl") ||
		strings.Contains(c, "update sl") || strings.Contains(c, "stoploss to"):
		return ActionStopLossUpdate
	}
	return ActionUnknown
}

// TakeProfitIndex extracts N from a take_profit_N action type; 1 when absent.
func TakeProfitIndex(actionType string) int {
	m := takeProfitN.FindStringSubmatch(strings.ToLower(actionType))
	if len(m) == 2 {
		n := 0
		for _, ch := range m[1] {
			n = n*10 + int(ch-'0')
		}
		if n > 0 {
			return n
		}
	}
	return 1
}
