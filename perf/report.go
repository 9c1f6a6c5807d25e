package perf

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"live-trader-go/infrastructure/logger"
)

// Report 按区间收盘时间索引的最终报告。
type Report struct {
	Index     []time.Time
	Snapshots map[time.Time]Snapshot
}

// Finalize 以 PeriodClose 为索引汇总快照；同一时刻重复记录时保留后者。
func Finalize(snaps []Snapshot) Report {
	r := Report{Snapshots: make(map[time.Time]Snapshot, len(snaps))}
	for _, s := range snaps {
		key := s.PeriodClose.UTC()
		if _, ok := r.Snapshots[key]; !ok {
			r.Index = append(r.Index, key)
		}
		r.Snapshots[key] = s
	}
	sort.Slice(r.Index, func(i, j int) bool { return r.Index[i].Before(r.Index[j]) })
	return r
}

func (r Report) Len() int { return len(r.Index) }

// Last 最后一条快照。
func (r Report) Last() (Snapshot, bool) {
	if len(r.Index) == 0 {
		return Snapshot{}, false
	}
	return r.Snapshots[r.Index[len(r.Index)-1]], true
}

// Row 导出 CSV 的一行。
type Row struct {
	PeriodClose       string  `csv:"period_close"`
	PortfolioValue    string  `csv:"portfolio_value"`
	Cash              string  `csv:"ending_cash"`
	PositionsValue    string  `csv:"positions_value"`
	CapitalUsed       string  `csv:"capital_used"`
	PnL               string  `csv:"pnl"`
	Returns           float64 `csv:"returns"`
	CumulativeReturns float64 `csv:"algorithm_period_return"`
	Transactions      int     `csv:"transactions"`
	Orders            int     `csv:"orders"`
	Volatility        float64 `csv:"algo_volatility"`
	Sharpe            float64 `csv:"sharpe"`
	MaxDrawdown       float64 `csv:"max_drawdown"`
	MaxLeverage       float64 `csv:"max_leverage"`
}

func (r Report) Rows() []Row {
	rows := make([]Row, 0, len(r.Index))
	for _, ts := range r.Index {
		s := r.Snapshots[ts]
		rows = append(rows, Row{
			PeriodClose:       ts.Format(time.RFC3339),
			PortfolioValue:    s.Cumulative.EndingValue.String(),
			Cash:              s.Cumulative.EndingCash.String(),
			PositionsValue:    s.Cumulative.PositionsValue.String(),
			CapitalUsed:       s.Cumulative.CapitalUsed.String(),
			PnL:               s.Minute.PnL.String(),
			Returns:           s.Minute.Returns,
			CumulativeReturns: s.Cumulative.Returns,
			Transactions:      len(s.Minute.Transactions),
			Orders:            len(s.Minute.Orders),
			Volatility:        s.Risk.AlgoVolatility,
			Sharpe:            s.Risk.Sharpe,
			MaxDrawdown:       s.Risk.MaxDrawdown,
			MaxLeverage:       s.Risk.MaxLeverage,
		})
	}
	return rows
}

// WriteCSV 输出全部快照。
func (r Report) WriteCSV(w io.Writer) error {
	rows := r.Rows()
	return gocsv.Marshal(&rows, w)
}

// Render 输出最后一条快照的汇总表。
func (r Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"metric", "value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	last, ok := r.Last()
	if !ok {
		table.Append([]string{"periods", "0"})
		table.Render()
		return
	}
	var txns, orders int
	for _, ts := range r.Index {
		txns += len(r.Snapshots[ts].Minute.Transactions)
		orders += len(r.Snapshots[ts].Minute.Orders)
	}
	pct := func(v float64) string { return strconv.FormatFloat(v*100, 'f', 2, 64) + "%" }
	table.AppendBulk([][]string{
		{"periods", strconv.Itoa(r.Len())},
		{"start", r.Index[0].Format(time.RFC3339)},
		{"end", last.PeriodClose.UTC().Format(time.RFC3339)},
		{"starting value", last.Cumulative.StartingValue.StringFixed(2)},
		{"ending value", last.Cumulative.EndingValue.StringFixed(2)},
		{"pnl", last.Cumulative.PnL.StringFixed(2)},
		{"returns", pct(last.Cumulative.Returns)},
		{"volatility", strconv.FormatFloat(last.Risk.AlgoVolatility, 'f', 4, 64)},
		{"sharpe", strconv.FormatFloat(last.Risk.Sharpe, 'f', 4, 64)},
		{"max drawdown", pct(last.Risk.MaxDrawdown)},
		{"max leverage", strconv.FormatFloat(last.Risk.MaxLeverage, 'f', 4, 64)},
		{"transactions", strconv.Itoa(txns)},
		{"orders", strconv.Itoa(orders)},
	})
	table.Render()
}

// Analyzer 在停止时接收最终报告。
type Analyzer interface {
	Analyze(r Report) error
}

// AnalyzerFunc 函数适配器。
type AnalyzerFunc func(r Report) error

func (f AnalyzerFunc) Analyze(r Report) error { return f(r) }

// ConsoleAnalyzer 打印汇总表，配置了路径时同时导出 CSV。
type ConsoleAnalyzer struct {
	Out     io.Writer
	CSVPath string
	Log     *logger.Logger
}

func (a ConsoleAnalyzer) Analyze(r Report) error {
	out := a.Out
	if out == nil {
		out = os.Stdout
	}
	r.Render(out)
	if a.CSVPath == "" {
		return nil
	}
	f, err := os.Create(a.CSVPath)
	if err != nil {
		return fmt.Errorf("create report csv: %w", err)
	}
	defer f.Close()
	if err := r.WriteCSV(f); err != nil {
		return fmt.Errorf("write report csv: %w", err)
	}
	if a.Log != nil {
		a.Log.Info("report written", zap.String("path", a.CSVPath), zap.Int("periods", r.Len()))
	}
	return nil
}
