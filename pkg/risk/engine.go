package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Engine 是风险引擎对象。
// 你可以把它理解成"一个计算器"：
// 输入（账户+试算结果+规则参数）→ 输出（是否准入、下单量、保证金调整）。
// 引擎本身无状态，账户由 PortfolioController 持有。

type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// =============================================================================
// 准入检查
// =============================================================================

// Admit 成交准入检查
//
// margin = opened * marginPerContract
// available - margin < 0 → 拒绝，账户不变
// 否则 allocated += margin，available += profit - margin
func (e *Engine) Admit(in AdmissionInput) AdmissionResult {
	opened := in.Opened
	if in.FloorOpened && opened < 0 {
		opened = 0
	}
	margin := in.MarginPerContract.Mul(decimal.NewFromInt(opened))

	if in.Account.Available.Sub(margin).IsNegative() {
		return AdmissionResult{
			Accepted:       false,
			MarginRequired: margin,
			After:          in.Account,
		}
	}

	return AdmissionResult{
		Accepted:       true,
		MarginRequired: margin,
		After: Account{
			Available: in.Account.Available.Add(in.Profit).Sub(margin),
			Allocated: in.Account.Allocated.Add(margin),
		},
	}
}

// =============================================================================
// 下单量
// =============================================================================

// OrderSize 信号下单量
// size = min(标准量, 单资产上限 - 同方向敞口, 总上限 - 总敞口)，<= 0 表示不下单
func (e *Engine) OrderSize(l Limits, sameDirection, aggregate int64) int64 {
	size := min(
		l.StandardOrderSize,
		l.MaxSingleExposure-sameDirection,
		l.MaxOverallExposure-aggregate,
	)
	if size < 0 {
		return 0
	}
	return size
}

// =============================================================================
// 隔夜保证金
// =============================================================================

// OvernightAdjustment 收盘切换隔夜保证金时的资金调整额
// Σ |净持仓| * delta，表中没有的资产 delta 视为 0
func (e *Engine) OvernightAdjustment(net map[string]int64, deltas map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for asset, qty := range net {
		delta, ok := deltas[asset]
		if !ok || qty == 0 {
			continue
		}
		if qty < 0 {
			qty = -qty
		}
		total = total.Add(delta.Mul(decimal.NewFromInt(qty)))
	}
	return total
}

// =============================================================================
// 账户风险报告
// =============================================================================

// ComputeRisk 账户风险报告（展示用，不参与准入）
func (e *Engine) ComputeRisk(in RiskInput) (RiskOutput, error) {
	// 1. 基础校验
	if err := validateInput(in); err != nil {
		return RiskOutput{}, err
	}

	var (
		gross      int64
		unrealized = decimal.Zero
		overnight  = decimal.Zero
		warnings   []string
	)

	// 2. 遍历仓位
	for _, p := range in.Positions {
		if p.Quantity < 0 {
			return RiskOutput{}, errors.New("negative quantity for: " + p.Asset)
		}
		gross += p.Quantity
		unrealized = unrealized.Add(p.Unrealized)

		qty := decimal.NewFromInt(p.Quantity)
		delta, ok := in.OvernightDeltas[p.Asset]
		if !ok && p.Quantity > 0 {
			warnings = append(warnings, "no overnight margin delta for "+p.Asset)
		}
		overnight = overnight.Add(in.MarginPerContract.Add(delta).Mul(qty))
	}

	// 3. 账户级
	equity := in.Account.Available.Add(in.Account.Allocated).Add(unrealized)

	ratio := decimal.NewFromInt(-1)
	if equity.IsPositive() {
		ratio = in.Account.Allocated.Div(equity)
	}

	return RiskOutput{
		GrossExposure:      gross,
		TotalUnrealized:    unrealized,
		Equity:             equity,
		IntradayMarginReq:  in.MarginPerContract.Mul(decimal.NewFromInt(gross)),
		OvernightMarginReq: overnight,
		MarginRatio:        ratio,
		Warnings:           dedup(warnings),
	}, nil
}

func validateInput(in RiskInput) error {
	if !in.MarginPerContract.IsPositive() {
		return errors.New("margin per contract must be positive")
	}
	return nil
}

func dedup(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, s := range ss {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
