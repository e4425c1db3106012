// Package session classifies instants into trading sessions for the markets a task
// can trade.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"
	// Embedded zone database so classification works on minimal images.
	_ "time/tzdata"

	"github.com/yourusername/quantopia/internal/models"
)

// Market identifies the exchange calendar a symbol follows
type Market string

const (
	MarketUS Market = "US"
	MarketHK Market = "HK"
)

// MarketFor picks the market from the symbol suffix. Symbols without a known suffix
// follow US hours.
func MarketFor(symbol string) Market {
	if strings.HasSuffix(strings.ToUpper(symbol), ".HK") {
		return MarketHK
	}
	return MarketUS
}

// Location returns the exchange time zone of the market
func (m Market) Location() *time.Location {
	switch m {
	case MarketHK:
		return hongKong()
	default:
		return newYork()
	}
}

var (
	zonesOnce sync.Once
	nyZone    *time.Location
	hkZone    *time.Location
)

func loadZones() {
	var err error
	if nyZone, err = time.LoadLocation("America/New_York"); err != nil {
		panic(fmt.Sprintf("loading ET timezone: %v", err))
	}
	if hkZone, err = time.LoadLocation("Asia/Hong_Kong"); err != nil {
		panic(fmt.Sprintf("loading HK timezone: %v", err))
	}
}

func newYork() *time.Location {
	zonesOnce.Do(loadZones)
	return nyZone
}

func hongKong() *time.Location {
	zonesOnce.Do(loadZones)
	return hkZone
}

// window is a half-open [start, end) range of minutes since local midnight
type window struct {
	start, end int
	session    models.Session
}

func hm(h, m int) int { return h*60 + m }

var usWindows = []window{
	{hm(4, 0), hm(9, 30), models.SessionPreMarket},
	{hm(9, 30), hm(16, 0), models.SessionRegular},
	{hm(16, 0), hm(20, 0), models.SessionAfterHours},
}

var hkWindows = []window{
	{hm(9, 30), hm(12, 0), models.SessionRegular},
	{hm(13, 0), hm(16, 0), models.SessionRegular},
	{hm(17, 15), hm(23, 45), models.SessionOvernight},
}

// Classifier maps (symbol, instant) to a session. The zero value has no holidays.
type Classifier struct {
	holidays map[Market]map[string]struct{}
}

// NewClassifier returns a classifier that reports closed on the given local dates
// (YYYY-MM-DD) per market
func NewClassifier(holidays map[Market][]string) (*Classifier, error) {
	c := &Classifier{holidays: make(map[Market]map[string]struct{}, len(holidays))}
	for market, dates := range holidays {
		set := make(map[string]struct{}, len(dates))
		for _, d := range dates {
			if _, err := time.Parse(time.DateOnly, d); err != nil {
				return nil, models.NewConfigurationError("holidays", "invalid %s date %q", market, d)
			}
			set[d] = struct{}{}
		}
		c.holidays[market] = set
	}
	return c, nil
}

// Classify returns the session symbol is in at t
func (c *Classifier) Classify(symbol string, t time.Time) models.Session {
	market := MarketFor(symbol)
	local := t.In(market.Location())

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return models.SessionClosed
	}
	if c != nil {
		if _, ok := c.holidays[market][local.Format(time.DateOnly)]; ok {
			return models.SessionClosed
		}
	}

	minute := local.Hour()*60 + local.Minute()
	if market == MarketHK {
		return match(hkWindows, minute, models.SessionClosed)
	}
	// US hours outside the listed windows on a weekday are the overnight session.
	return match(usWindows, minute, models.SessionOvernight)
}

func match(windows []window, minute int, fallback models.Session) models.Session {
	for _, w := range windows {
		if minute >= w.start && minute < w.end {
			return w.session
		}
	}
	return fallback
}

var defaultClassifier = &Classifier{}

// Classify uses a classifier without holidays
func Classify(symbol string, t time.Time) models.Session {
	return defaultClassifier.Classify(symbol, t)
}

// Allowed reports whether s is in allowed. Closed is never allowed.
func Allowed(s models.Session, allowed []models.Session) bool {
	if s == models.SessionClosed {
		return false
	}
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}
