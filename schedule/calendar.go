// Package schedule 根据交易日历、盘前时间与交易所时钟偏差生成 tick 序列。
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay 一天内的时刻。
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay 解析 "15:04" 或 "15:04:05"。
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

// On 返回 date 所在日（按 loc）的该时刻。
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, 0, loc)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) seconds() int { return t.Hour*3600 + t.Minute*60 + t.Second }

// Session 一个交易时段。
type Session struct {
	Date  time.Time // 当日 00:00（日历时区）
	Open  time.Time
	Close time.Time
}

// Calendar 给出 [start, end] 日期区间内的交易时段，按时间升序。
type Calendar interface {
	Sessions(start, end time.Time) ([]Session, error)
	Location() *time.Location
	// PeriodsPerYear 一年内按 emission 产生的 bar 数，用于年化风险指标。
	PeriodsPerYear(e Emission) float64
}

// WeeklyCalendar 固定开收盘时刻、按星期筛选交易日的日历，不处理节假日。
type WeeklyCalendar struct {
	loc      *time.Location
	open     TimeOfDay
	close    TimeOfDay
	weekdays map[time.Weekday]bool
}

// NewWeeklyCalendar weekdays 为空表示每天交易。
func NewWeeklyCalendar(loc *time.Location, open, close TimeOfDay, weekdays ...time.Weekday) (*WeeklyCalendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	if close.seconds() <= open.seconds() {
		return nil, fmt.Errorf("session close %s must be after open %s", close, open)
	}
	days := make(map[time.Weekday]bool, 7)
	if len(weekdays) == 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			days[d] = true
		}
	}
	for _, d := range weekdays {
		days[d] = true
	}
	return &WeeklyCalendar{loc: loc, open: open, close: close, weekdays: days}, nil
}

// AlwaysOpen 全天候交易的日历（00:00 开盘，23:59 收盘）。
func AlwaysOpen() *WeeklyCalendar {
	cal, _ := NewWeeklyCalendar(time.UTC, TimeOfDay{}, TimeOfDay{Hour: 23, Minute: 59})
	return cal
}

func (c *WeeklyCalendar) Location() *time.Location { return c.loc }

func (c *WeeklyCalendar) PeriodsPerYear(e Emission) float64 {
	days := float64(len(c.weekdays)) * 365 / 7
	if e == EmitDaily {
		return days
	}
	// 开盘到收盘（含）每分钟一个 bar
	return days * float64((c.close.seconds()-c.open.seconds())/60+1)
}

func (c *WeeklyCalendar) Sessions(start, end time.Time) ([]Session, error) {
	first := TimeOfDay{}.On(start, c.loc)
	last := TimeOfDay{}.On(end, c.loc)
	if last.Before(first) {
		return nil, fmt.Errorf("end %s before start %s", end, start)
	}
	var res []Session
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if !c.weekdays[day.Weekday()] {
			continue
		}
		res = append(res, Session{
			Date:  day,
			Open:  c.open.On(day, c.loc),
			Close: c.close.On(day, c.loc),
		})
	}
	return res, nil
}

// ParseWeekday 接受 Mon/Monday 等写法。
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}
