package timeslice

import (
	"fmt"
	"strings"
	"time"
)

// Slice is one period of a fixed-period annual calendar: every year is
// divided into the same number of slices, each anchored to fixed
// month/day positions. Stepping arithmetic stays on the concrete types
// because it returns values of the same calendar.
type Slice interface {
	Year() int
	Seqno() int
	Month() int
	Day() int
	SlicesPerYear() int
	PeriodStart() time.Time
	PeriodEnd() time.Time
	Resolve(pattern string, extra map[string]string) string
	String() string
}

const dekadsPerYear = 36

// Dekad is a single 10-day slice of a year: days 1-10, 11-20 or 21 to
// month end, giving 36 per year. The third dekad of a month absorbs the
// trailing calendar days, so no leap handling is needed. Values are
// immutable; arithmetic returns new ones.
type Dekad struct {
	year  int
	seqno int
}

var _ Slice = Dekad{}

// New builds the seqno-th dekad of year. Seqno outside [1,36] is a
// programming fault and panics.
func New(year, seqno int) Dekad {
	if seqno < 1 || seqno > dekadsPerYear {
		panic(fmt.Sprintf("dekad seqno %d outside [1,%d]", seqno, dekadsPerYear))
	}
	return Dekad{year: year, seqno: seqno}
}

// FromTime locates the dekad containing t.
func FromTime(t time.Time) Dekad {
	pos := (t.Day() - 1) / 10
	if pos > 2 {
		pos = 2
	}
	return Dekad{year: t.Year(), seqno: (int(t.Month())-1)*3 + pos + 1}
}

func (d Dekad) Year() int  { return d.year }
func (d Dekad) Seqno() int { return d.seqno }

func (d Dekad) Month() int { return (d.seqno-1)/3 + 1 }
func (d Dekad) Day() int   { return (d.seqno-1)%3*10 + 1 }

// MonthDekad is the 1-based position of the dekad within its month.
func (d Dekad) MonthDekad() int { return (d.seqno-1)%3 + 1 }

func (d Dekad) SlicesPerYear() int { return dekadsPerYear }

// Add steps n dekads forward (negative n steps back), carrying across
// year boundaries so dekad 36 is followed by dekad 1 of the next year.
func (d Dekad) Add(n int) Dekad {
	idx := d.year*dekadsPerYear + d.seqno + n
	if idx%dekadsPerYear == 0 {
		return Dekad{year: idx/dekadsPerYear - 1, seqno: dekadsPerYear}
	}
	return Dekad{year: idx / dekadsPerYear, seqno: idx % dekadsPerYear}
}

func (d Dekad) Next() Dekad     { return d.Add(1) }
func (d Dekad) Prev() Dekad     { return d.Add(-1) }
func (d Dekad) Sub(n int) Dekad { return d.Add(-n) }

func (d Dekad) NextYear() Dekad { return d.Add(dekadsPerYear) }
func (d Dekad) PrevYear() Dekad { return d.Add(-dekadsPerYear) }

func (d Dekad) PeriodStart() time.Time {
	return time.Date(d.year, time.Month(d.Month()), d.Day(), 0, 0, 0, 0, time.UTC)
}

// PeriodEnd is the last instant of the dekad, one second before the
// next one starts.
func (d Dekad) PeriodEnd() time.Time {
	return d.Add(1).PeriodStart().Add(-time.Second)
}

// PeriodMid is the nominal center date used when a single timestamp
// must represent the whole dekad.
func (d Dekad) PeriodMid() time.Time {
	return d.PeriodStart().AddDate(0, 0, 4)
}

func (d Dekad) StartsBefore(t time.Time) bool { return d.PeriodStart().Before(t) }
func (d Dekad) EndsAfter(t time.Time) bool    { return d.PeriodEnd().After(t) }

// EndsAfterPeriod reports whether this dekad's period end falls after
// o's period end.
func (d Dekad) EndsAfterPeriod(o Dekad) bool { return d.PeriodEnd().After(o.PeriodEnd()) }

func (d Dekad) Equal(o Dekad) bool { return d.year == o.year && d.seqno == o.seqno }

func (d Dekad) After(o Dekad) bool {
	if d.year != o.year {
		return d.year > o.year
	}
	return d.seqno > o.seqno
}

// Diff is the signed number of steps from o to d, so d.Diff(d.Add(n))
// is -n.
func (d Dekad) Diff(o Dekad) int {
	return (d.year-o.year)*dekadsPerYear + d.seqno - o.seqno
}

// Resolve substitutes the period's date fields into pattern. Recognized
// placeholders are $(yyyy), $(mm), $(dd) and $(mdekad), the zero-padded
// position within the month. Keys of extra substitute $(key) afterwards.
func (d Dekad) Resolve(pattern string, extra map[string]string) string {
	s := strings.ReplaceAll(pattern, "$(yyyy)", fmt.Sprintf("%04d", d.year))
	s = strings.ReplaceAll(s, "$(mm)", fmt.Sprintf("%02d", d.Month()))
	s = strings.ReplaceAll(s, "$(dd)", fmt.Sprintf("%02d", d.Day()))
	s = strings.ReplaceAll(s, "$(mdekad)", fmt.Sprintf("%02d", d.MonthDekad()))
	for k, v := range extra {
		s = strings.ReplaceAll(s, "$("+k+")", v)
	}
	return s
}

// Format renders the period start in a time layout.
func (d Dekad) Format(layout string) string {
	return d.PeriodStart().Format(layout)
}

func (d Dekad) String() string {
	return d.PeriodStart().Format("20060102")
}
