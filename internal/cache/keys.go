package cache

import "fmt"

func TrendKey(timeRange, environment, category string, windowStart int64) string {
	return fmt.Sprintf("trend:%s:%s:%s:%d", timeRange, environment, category, windowStart)
}

func BreakdownKey(filterHash string) string {
	return fmt.Sprintf("breakdown:%s", filterHash)
}

func RateLimitKey(clientIP string) string {
	return fmt.Sprintf("ratelimit:submit:%s", clientIP)
}
