package utils

import (
	"strings"
	"time"

	"alpaca-gate/internal/models"
)

// USEastern is the timezone for US equity markets.
var USEastern *time.Location

// UKLondon is the timezone for the London Stock Exchange.
var UKLondon *time.Location

func init() {
	var err error
	USEastern, err = time.LoadLocation("America/New_York")
	if err != nil {
		USEastern = time.FixedZone("EST", -5*60*60)
	}
	UKLondon, err = time.LoadLocation("Europe/London")
	if err != nil {
		UKLondon = time.FixedZone("GMT", 0)
	}
}

// MarketSchedule describes a venue's trading hours.
type MarketSchedule struct {
	Market    models.Market
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
	Location  *time.Location
	Always    bool // 24/7 venues
}

// ScheduleFor returns the trading schedule for a market.
func ScheduleFor(market models.Market) MarketSchedule {
	switch market {
	case models.MarketUKStocks:
		return MarketSchedule{Market: market, OpenHour: 8, CloseHour: 16, CloseMin: 30, Location: UKLondon}
	case models.MarketCrypto:
		return MarketSchedule{Market: market, Location: time.UTC, Always: true}
	default:
		return MarketSchedule{Market: market, OpenHour: 9, OpenMin: 30, CloseHour: 16, Location: USEastern}
	}
}

// MarketForSymbol determines which market a symbol belongs to.
// ".L" suffixed symbols trade on the LSE; "-USD"/"-GBP"/"-EUR" pairs are
// crypto; everything else is treated as a US equity.
func MarketForSymbol(symbol string) models.Market {
	if strings.HasSuffix(symbol, ".L") {
		return models.MarketUKStocks
	}
	if strings.HasSuffix(symbol, "-USD") || strings.HasSuffix(symbol, "-GBP") || strings.HasSuffix(symbol, "-EUR") {
		return models.MarketCrypto
	}
	return models.MarketUSStocks
}

// IsMarketOpen reports whether a market is in trading hours at the given
// time. Holidays are not accounted for; the broker's clock is
// authoritative for those.
func IsMarketOpen(market models.Market, now time.Time) bool {
	sched := ScheduleFor(market)
	if sched.Always {
		return true
	}

	local := now.In(sched.Location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	open := sched.OpenHour*60 + sched.OpenMin
	close := sched.CloseHour*60 + sched.CloseMin
	return minutes >= open && minutes <= close
}

// TradingDay returns the trading-day identifier for a market at the
// given instant, in the venue's local calendar. Daily accounting is
// keyed by this value and never straddles its boundaries.
func TradingDay(market models.Market, now time.Time) string {
	sched := ScheduleFor(market)
	return now.In(sched.Location).Format("2006-01-02")
}

// NextMarketOpen returns the next opening time for a market.
func NextMarketOpen(market models.Market, now time.Time) time.Time {
	sched := ScheduleFor(market)
	if sched.Always {
		return now
	}

	local := now.In(sched.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), sched.OpenHour, sched.OpenMin, 0, 0, sched.Location)
	if local.After(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
