package backtest

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// BusinessDays 生成 [start, end] 闭区间内的工作日（周一至周五）。
func BusinessDays(startDate, endDate string) ([]time.Time, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return nil, fmt.Errorf("解析开始日期失败: %w", err)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return nil, fmt.Errorf("解析结束日期失败: %w", err)
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		default:
			days = append(days, d)
		}
	}
	return days, nil
}

// monthsBack 回退 n 个自然月，日期超出目标月天数时收敛到月末
// （如 3-31 回退一个月得到 2-28）。
func monthsBack(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month-time.Month(n), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, t.Location())
}
