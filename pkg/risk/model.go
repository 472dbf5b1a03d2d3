package risk

import (
	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/market"
)

// Limits 下单敞口限制。
// 单位都是"手"（合约数量），和持仓数量同一口径。
type Limits struct {
	// StandardOrderSize：每次信号的标准下单量
	StandardOrderSize int64 `json:"standard_order_size"`

	// MaxSingleExposure：单资产同方向最大敞口
	MaxSingleExposure int64 `json:"max_single_exposure"`

	// MaxOverallExposure：所有资产净持仓绝对值之和的上限
	MaxOverallExposure int64 `json:"max_overall_exposure"`
}

// Account 表示账户资金状态。
//
// Available：可用资金，准入检查看的就是它
// Allocated：已占用保证金
type Account struct {
	Available decimal.Decimal `json:"available"`
	Allocated decimal.Decimal `json:"allocated"`
}

// AdmissionInput 准入检查输入：一笔成交试算后的结果 + 当前账户
type AdmissionInput struct {
	Account Account `json:"account"`

	// Profit：这笔成交平仓带来的实现盈亏
	Profit decimal.Decimal `json:"profit"`

	// Opened：保证金口径的开仓数（可以为负，表示释放保证金）
	Opened int64 `json:"opened"`

	// MarginPerContract：日内每手保证金
	MarginPerContract decimal.Decimal `json:"margin_per_contract"`

	// FloorOpened：是否把负的开仓数截断为 0（不释放保证金）
	FloorOpened bool `json:"floor_opened"`
}

// AdmissionResult 准入检查输出
type AdmissionResult struct {
	Accepted       bool            `json:"accepted"`
	MarginRequired decimal.Decimal `json:"margin_required"`

	// 通过时的账户状态；拒绝时等于输入账户
	After Account `json:"after"`
}

// Position 风险报告用的净持仓
type Position struct {
	Asset     string           `json:"asset"`
	Direction market.Direction `json:"direction"`
	Quantity  int64            `json:"quantity"`

	// Unrealized：盯市浮动盈亏（按最近一个周期的中间价）
	Unrealized decimal.Decimal `json:"unrealized"`
}

// RiskInput 账户风险报告输入
type RiskInput struct {
	Account   Account    `json:"account"`
	Positions []Position `json:"positions"`

	// MarginPerContract：日内每手保证金
	MarginPerContract decimal.Decimal `json:"margin_per_contract"`

	// OvernightDeltas：资产 → 隔夜保证金相对日内的差额（每手）
	OvernightDeltas map[string]decimal.Decimal `json:"overnight_deltas"`
}

// RiskOutput 账户风险报告
type RiskOutput struct {
	// GrossExposure：净持仓绝对值之和
	GrossExposure int64 `json:"gross_exposure"`

	// TotalUnrealized：总浮动盈亏
	TotalUnrealized decimal.Decimal `json:"total_unrealized"`

	// Equity：可用 + 占用 + 浮动盈亏
	Equity decimal.Decimal `json:"equity"`

	// IntradayMarginReq：按日内保证金计算的需求
	IntradayMarginReq decimal.Decimal `json:"intraday_margin_req"`

	// OvernightMarginReq：如果现在收盘，需要的保证金
	OvernightMarginReq decimal.Decimal `json:"overnight_margin_req"`

	// MarginRatio：已占用保证金 / 权益。权益 <= 0 时为 -1
	MarginRatio decimal.Decimal `json:"margin_ratio"`

	Warnings []string `json:"warnings,omitempty"`
}
