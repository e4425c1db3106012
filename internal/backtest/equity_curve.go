package backtest

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// EquityPoint represents a point in the equity curve
type EquityPoint struct {
	Index    int64     `json:"index"`
	Time     time.Time `json:"time"`
	Price    float64   `json:"price"`
	Cash     float64   `json:"cash"`
	Position float64   `json:"position"`
	Value    float64   `json:"value"`
	Drawdown float64   `json:"drawdown"`
}

// EquityCurve represents a series of equity points, one per replayed tick
type EquityCurve []EquityPoint

// Values returns the portfolio values of the curve
func (e EquityCurve) Values() []float64 {
	out := make([]float64, len(e))
	for i, p := range e {
		out[i] = p.Value
	}
	return out
}

// GetReturns calculates per-tick simple returns, skipping ticks whose previous value
// is not positive
func (e EquityCurve) GetReturns() []float64 {
	if len(e) < 2 {
		return []float64{}
	}
	returns := make([]float64, 0, len(e)-1)
	for i := 1; i < len(e); i++ {
		prev := e[i-1].Value
		if prev <= 0 {
			continue
		}
		returns = append(returns, (e[i].Value-prev)/prev)
	}
	return returns
}

// GetVolatility calculates the population standard deviation of returns
func (e EquityCurve) GetVolatility() float64 {
	return stddev(e.GetReturns())
}

// GetDownsideDeviation calculates downside deviation of returns
func (e EquityCurve) GetDownsideDeviation() float64 {
	returns := e.GetReturns()
	if len(returns) == 0 {
		return 0
	}
	variance := 0.0
	count := 0
	for _, r := range returns {
		if r < 0 {
			variance += r * r
			count++
		}
	}
	if count == 0 {
		return 0
	}
	variance /= float64(count)
	return math.Sqrt(variance)
}

// MaxDrawdown returns the largest drawdown fraction on the curve
func (e EquityCurve) MaxDrawdown() float64 {
	maxDD := 0.0
	for _, p := range e {
		if p.Drawdown > maxDD {
			maxDD = p.Drawdown
		}
	}
	return maxDD
}

// ToCSV exports equity curve to CSV string
func (e EquityCurve) ToCSV() string {
	var buf bytes.Buffer
	buf.WriteString("index,time,price,cash,position,value,drawdown\n")
	for _, point := range e {
		buf.WriteString(strconv.FormatInt(point.Index, 10))
		buf.WriteString(",")
		if !point.Time.IsZero() {
			buf.WriteString(point.Time.UTC().Format(time.RFC3339))
		}
		for _, v := range []float64{point.Price, point.Cash, point.Position, point.Value, point.Drawdown} {
			buf.WriteString(",")
			buf.WriteString(formatFloat(v))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

// ToJSON exports equity curve to JSON string
func (e EquityCurve) ToJSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
