package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/market"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestAdmit_RejectsWhenMarginExceedsAvailable(t *testing.T) {
	e := NewEngine()

	// 场景：
	// 可用 1000，每手 125
	// 开 9 手 → 需要 1125 > 1000 → 拒绝
	in := AdmissionInput{
		Account:           Account{Available: dec(1000), Allocated: dec(0)},
		Profit:            dec(50),
		Opened:            9,
		MarginPerContract: dec(125),
	}

	out := e.Admit(in)
	if out.Accepted {
		t.Fatalf("expected rejection")
	}
	if !out.MarginRequired.Equal(dec(1125)) {
		t.Errorf("expected margin 1125, got %v", out.MarginRequired)
	}
	// 拒绝时账户不变
	if !out.After.Available.Equal(dec(1000)) || !out.After.Allocated.IsZero() {
		t.Errorf("account must be unchanged, got %+v", out.After)
	}
}

func TestAdmit_AcceptsAndMovesCapital(t *testing.T) {
	e := NewEngine()

	// 开 7 手 → 875 <= 1000 → 通过
	// available = 1000 + 50 - 875 = 175
	// allocated = 0 + 875
	out := e.Admit(AdmissionInput{
		Account:           Account{Available: dec(1000)},
		Profit:            dec(50),
		Opened:            7,
		MarginPerContract: dec(125),
	})
	if !out.Accepted {
		t.Fatalf("expected acceptance")
	}
	if !out.After.Available.Equal(dec(175)) {
		t.Errorf("expected available 175, got %v", out.After.Available)
	}
	if !out.After.Allocated.Equal(dec(875)) {
		t.Errorf("expected allocated 875, got %v", out.After.Allocated)
	}
}

func TestAdmit_ExactlyZeroRemainingIsAccepted(t *testing.T) {
	e := NewEngine()
	out := e.Admit(AdmissionInput{
		Account:           Account{Available: dec(250)},
		Opened:            2,
		MarginPerContract: dec(125),
	})
	if !out.Accepted {
		t.Fatalf("available - margin == 0 must be accepted")
	}
}

func TestAdmit_NegativeOpenedReleasesMargin(t *testing.T) {
	e := NewEngine()
	in := AdmissionInput{
		Account:           Account{Available: dec(100), Allocated: dec(750)},
		Profit:            dec(4),
		Opened:            -6,
		MarginPerContract: dec(125),
	}

	out := e.Admit(in)
	// margin = -750 → available = 100 + 4 + 750 = 854, allocated = 0
	if !out.Accepted || !out.After.Available.Equal(dec(854)) || !out.After.Allocated.IsZero() {
		t.Errorf("unexpected result %+v", out)
	}

	in.FloorOpened = true
	out = e.Admit(in)
	if !out.MarginRequired.IsZero() || !out.After.Available.Equal(dec(104)) {
		t.Errorf("floored: unexpected result %+v", out)
	}
}

func TestOrderSize(t *testing.T) {
	e := NewEngine()
	l := Limits{StandardOrderSize: 5, MaxSingleExposure: 8, MaxOverallExposure: 12}

	cases := []struct {
		same, agg, want int64
	}{
		{0, 0, 5},   // 标准量
		{5, 5, 3},   // 单资产上限
		{0, 10, 2},  // 总上限
		{8, 8, 0},   // 单资产已满
		{10, 4, 0},  // 超限也不返回负数
		{0, 12, 0},  // 总敞口已满
	}
	for _, c := range cases {
		if got := e.OrderSize(l, c.same, c.agg); got != c.want {
			t.Errorf("OrderSize(same=%d, agg=%d) = %d, want %d", c.same, c.agg, got, c.want)
		}
	}
}

func TestOvernightAdjustment(t *testing.T) {
	e := NewEngine()
	deltas := map[string]decimal.Decimal{
		"WIN": dec(300),
		"WDO": dec(1000),
	}

	// 3*300 + |-2|*1000，IND 不在表中
	got := e.OvernightAdjustment(map[string]int64{"WIN": 3, "WDO": -2, "IND": 4}, deltas)
	if !got.Equal(dec(2900)) {
		t.Errorf("expected 2900, got %v", got)
	}

	if !e.OvernightAdjustment(nil, deltas).IsZero() {
		t.Errorf("expected zero for no positions")
	}
}

func TestComputeRisk_Report(t *testing.T) {
	e := NewEngine()

	in := RiskInput{
		Account: Account{Available: dec(500), Allocated: dec(625)},
		Positions: []Position{
			{Asset: "WIN", Direction: market.Long, Quantity: 3, Unrealized: dec(30)},
			{Asset: "IND", Direction: market.Short, Quantity: 2, Unrealized: dec(-5)},
		},
		MarginPerContract: dec(125),
		OvernightDeltas:   map[string]decimal.Decimal{"WIN": dec(100)},
	}

	out, err := e.ComputeRisk(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.GrossExposure != 5 {
		t.Errorf("expected gross 5, got %d", out.GrossExposure)
	}
	// Equity = 500 + 625 + 25
	if !out.Equity.Equal(dec(1150)) {
		t.Errorf("expected equity 1150, got %v", out.Equity)
	}
	if !out.IntradayMarginReq.Equal(dec(625)) {
		t.Errorf("expected intraday 625, got %v", out.IntradayMarginReq)
	}
	// WIN: 3*(125+100) = 675, IND: 2*125 = 250
	if !out.OvernightMarginReq.Equal(dec(925)) {
		t.Errorf("expected overnight 925, got %v", out.OvernightMarginReq)
	}
	if len(out.Warnings) != 1 {
		t.Errorf("expected one warning for IND, got %v", out.Warnings)
	}
}

func TestComputeRisk_NonPositiveEquity(t *testing.T) {
	e := NewEngine()
	out, err := e.ComputeRisk(RiskInput{
		Account:           Account{Available: dec(-100), Allocated: dec(50)},
		MarginPerContract: dec(125),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.MarginRatio.Equal(dec(-1)) {
		t.Errorf("expected ratio -1, got %v", out.MarginRatio)
	}
}

func TestComputeRisk_InvalidMargin(t *testing.T) {
	e := NewEngine()
	if _, err := e.ComputeRisk(RiskInput{}); err == nil {
		t.Fatalf("expected error for zero margin")
	}
}
