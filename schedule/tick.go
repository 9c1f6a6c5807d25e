package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Event tick 携带的事件，同一时刻的多个事件按位合并。
type Event uint8

const (
	EventSessionStart Event = 1 << iota
	EventBeforeTradingStart
	EventBar
	EventSessionEnd
)

func (e Event) Has(f Event) bool { return e&f != 0 }

func (e Event) String() string {
	var parts []string
	for _, f := range []struct {
		ev   Event
		name string
	}{
		{EventSessionStart, "session_start"},
		{EventBeforeTradingStart, "before_trading_start"},
		{EventBar, "bar"},
		{EventSessionEnd, "session_end"},
	} {
		if e.Has(f.ev) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Tick 一次调度。
type Tick struct {
	Time    time.Time
	Events  Event
	Session time.Time
}

// Emission bar 的产生粒度。
type Emission string

const (
	EmitMinute Emission = "minute"
	EmitDaily  Emission = "daily"
)

func ParseEmission(s string) (Emission, error) {
	switch e := Emission(strings.ToLower(s)); e {
	case EmitMinute, EmitDaily:
		return e, nil
	}
	return "", fmt.Errorf("unknown emission mode %q", s)
}

// PreSession 盘前准备时刻，按指定时区解释。
type PreSession struct {
	Time     TimeOfDay
	Location *time.Location
}

// At 该时段当日的盘前时刻。日期取日历时区下的交易日，再按盘前时区解释时刻。
func (p PreSession) At(s Session) time.Time {
	loc := p.Location
	if loc == nil {
		loc = s.Date.Location()
	}
	y, m, d := s.Date.Date()
	return time.Date(y, m, d, p.Time.Hour, p.Time.Minute, p.Time.Second, 0, loc)
}

// Options 生成 tick 的参数。
type Options struct {
	Emission   Emission
	PreSession *PreSession
	Skew       time.Duration
}

// Build 生成严格递增、无重复的 tick 序列。所有边界都加上 Skew。
// 分钟模式：开盘到收盘（含）每分钟一个 bar；日线模式：收盘时一个 bar。
func Build(sessions []Session, opts Options) []Tick {
	events := make(map[int64]*Tick)
	add := func(t time.Time, ev Event, s Session) {
		t = t.Add(opts.Skew)
		key := t.UnixNano()
		if tick, ok := events[key]; ok {
			tick.Events |= ev
			return
		}
		events[key] = &Tick{Time: t, Events: ev, Session: s.Date}
	}

	for _, s := range sessions {
		if opts.PreSession != nil {
			add(opts.PreSession.At(s), EventBeforeTradingStart, s)
		}
		add(s.Open, EventSessionStart, s)
		if opts.Emission == EmitDaily {
			add(s.Close, EventBar, s)
		} else {
			for t := s.Open; !t.After(s.Close); t = t.Add(time.Minute) {
				add(t, EventBar, s)
			}
		}
		add(s.Close, EventSessionEnd, s)
	}

	res := make([]Tick, 0, len(events))
	for _, tick := range events {
		res = append(res, *tick)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Time.Before(res[j].Time) })
	return res
}
