package metrics

import (
	"strings"

	"pressureflow/logger"
)

// detectLimit looks for venue-specific rate limit and IP ban wording in an error message.
func detectLimit(venue, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(venue) {
	case "binance":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	case "okx":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "frequency limit")
		ipBan = strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "blocked") || strings.Contains(lowerMsg, "ban"))
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "too many visits"))
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// ReportLimitFromMessage emits rate_limit_exceeded or ip_ban when msg matches
// the venue's wording. Returns true when either was detected.
func ReportLimitFromMessage(log *logger.Log, venue, symbol, msg string) bool {
	rateLimit, ipBan := detectLimit(venue, msg)
	if !rateLimit && !ipBan {
		return false
	}
	if log == nil {
		log = logger.GetLogger()
	}
	component := strings.ToLower(venue) + "_reader"
	fields := logger.Fields{"venue": strings.ToLower(venue), "symbol": symbol}
	if rateLimit {
		Record(log, Event{Kind: KindLimit, Component: component, Name: "rate_limit_exceeded", Value: 1, Venue: strings.ToLower(venue), Symbol: symbol})
		log.WithComponent(component).WithFields(fields).Warn("rate limit exceeded")
	}
	if ipBan {
		Record(log, Event{Kind: KindLimit, Component: component, Name: "ip_ban", Value: 1, Venue: strings.ToLower(venue), Symbol: symbol})
		log.WithComponent(component).WithFields(fields).Error("ip banned")
	}
	return true
}
