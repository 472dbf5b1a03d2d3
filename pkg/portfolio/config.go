// 文件: pkg/portfolio/config.go
// 组合控制器配置

package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/risk"
)

var (
	ErrInvalidConfig = errors.New("invalid portfolio config")
)

// =============================================================================
// 准入模式
// =============================================================================

// AdmissionMode 成交准入流程
type AdmissionMode int8

const (
	// AdmissionTwoPhase 先在持仓副本上试算，通过后才提交 (默认)
	AdmissionTwoPhase AdmissionMode = iota
	// AdmissionLegacy 先改持仓再检查，拒绝时持仓不回滚
	AdmissionLegacy
)

func (m AdmissionMode) String() string {
	switch m {
	case AdmissionTwoPhase:
		return "two-phase"
	case AdmissionLegacy:
		return "legacy"
	}
	return "unknown"
}

// ParseAdmissionMode 解析 "two-phase" / "legacy"
func ParseAdmissionMode(s string) (AdmissionMode, error) {
	switch s {
	case "", "two-phase":
		return AdmissionTwoPhase, nil
	case "legacy":
		return AdmissionLegacy, nil
	}
	return AdmissionTwoPhase, fmt.Errorf("%w: unknown admission mode %q", ErrInvalidConfig, s)
}

// =============================================================================
// Config
// =============================================================================

type Config struct {
	InitialCapital   decimal.Decimal // 初始可用资金
	InitialAllocated decimal.Decimal // 初始占用保证金

	Limits risk.Limits

	IntradayMargin  decimal.Decimal            // 日内每手保证金
	OvernightDeltas map[string]decimal.Decimal // 资产 → 隔夜保证金相对日内的差额 (每手)

	ClosingTime string         // 收盘时刻 "HH:MM"，为空则不切换隔夜保证金
	Location    *time.Location // 解释 ClosingTime 和交易日的时区

	Admission            AdmissionMode
	FloorOpenedContracts bool // 负的开仓数是否截断为 0
}

// DefaultConfig 默认配置 (两个迷你合约: 指数 WIN, 美元 WDO)
func DefaultConfig() Config {
	return Config{
		InitialCapital:   decimal.NewFromInt(100000),
		InitialAllocated: decimal.Zero,
		Limits: risk.Limits{
			StandardOrderSize:  1,
			MaxSingleExposure:  5,
			MaxOverallExposure: 10,
		},
		IntradayMargin: decimal.NewFromInt(125),
		OvernightDeltas: map[string]decimal.Decimal{
			"WIN": decimal.NewFromInt(375),
			"WDO": decimal.NewFromInt(875),
		},
		ClosingTime: "17:55",
		Location:    time.UTC,
		Admission:   AdmissionTwoPhase,
	}
}

// Validate 检查配置
func (c Config) Validate() error {
	if c.InitialCapital.IsNegative() {
		return fmt.Errorf("%w: initial capital is negative", ErrInvalidConfig)
	}
	if c.InitialAllocated.IsNegative() {
		return fmt.Errorf("%w: initial allocated is negative", ErrInvalidConfig)
	}
	if c.Limits.StandardOrderSize < 0 || c.Limits.MaxSingleExposure < 0 || c.Limits.MaxOverallExposure < 0 {
		return fmt.Errorf("%w: exposure limits must be non-negative", ErrInvalidConfig)
	}
	if !c.IntradayMargin.IsPositive() {
		return fmt.Errorf("%w: intraday margin must be positive", ErrInvalidConfig)
	}
	for asset, delta := range c.OvernightDeltas {
		if delta.IsNegative() {
			return fmt.Errorf("%w: overnight delta for %s is negative", ErrInvalidConfig, asset)
		}
	}
	if c.Admission != AdmissionTwoPhase && c.Admission != AdmissionLegacy {
		return fmt.Errorf("%w: unknown admission mode %d", ErrInvalidConfig, c.Admission)
	}
	if _, err := parseClock(c.ClosingTime); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// 收盘时刻
// =============================================================================

type clock struct {
	enabled      bool
	hour, minute int
}

func parseClock(s string) (clock, error) {
	if s == "" {
		return clock{}, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return clock{}, fmt.Errorf("%w: closing time %q: %v", ErrInvalidConfig, s, err)
	}
	return clock{enabled: true, hour: t.Hour(), minute: t.Minute()}, nil
}

// matches 周期时间戳的时分是否等于收盘时刻
func (c clock) matches(ts time.Time) bool {
	return c.enabled && ts.Hour() == c.hour && ts.Minute() == c.minute
}
