// 文件: pkg/transaction/ledger.go
// 成交账本 (只追加)

package transaction

import (
	"errors"
	"math"
)

var (
	ErrIDSpaceExhausted = errors.New("transaction id space exhausted")
)

// Ledger 只追加的成交账本
// ID 由单调递增计数器生成，在账本生命周期内唯一。
// 非并发安全，由 PortfolioController 独占。
type Ledger struct {
	runID   int64
	lastID  int64
	entries map[int64]Transaction
	order   []int64 // 入账顺序
}

func NewLedger() *Ledger {
	return NewRunLedger(0)
}

// NewRunLedger 入账的成交都带上 runID，归档时与 ID 组成主键
func NewRunLedger(runID int64) *Ledger {
	return &Ledger{runID: runID, entries: make(map[int64]Transaction)}
}

// RunID 账本所属运行
func (l *Ledger) RunID() int64 {
	return l.runID
}

// Register 入账，返回分配的 ID 以及带 ID 的成交副本
func (l *Ledger) Register(tx Transaction) (int64, Transaction, error) {
	if l.lastID == math.MaxInt64 {
		return 0, Transaction{}, ErrIDSpaceExhausted
	}
	l.lastID++

	tx.RunID = l.runID
	tx.ID = l.lastID
	l.entries[tx.ID] = tx
	l.order = append(l.order, tx.ID)
	return tx.ID, tx, nil
}

// Get 按 ID 查询
func (l *Ledger) Get(id int64) (Transaction, bool) {
	tx, ok := l.entries[id]
	return tx, ok
}

// Len 已入账数量
func (l *Ledger) Len() int {
	return len(l.order)
}

// All 按入账顺序返回全部成交
func (l *Ledger) All() []Transaction {
	out := make([]Transaction, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id])
	}
	return out
}

// ByAsset 按入账顺序返回某资产的成交
func (l *Ledger) ByAsset(asset string) []Transaction {
	var out []Transaction
	for _, id := range l.order {
		if tx := l.entries[id]; tx.Asset == asset {
			out = append(out, tx)
		}
	}
	return out
}
