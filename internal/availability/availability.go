// Package availability computes free time blocks from busy calendar
// intervals. It is pure interval math: merge the busy set, lay out the
// allowed working windows per day, subtract, and keep blocks long enough to
// be useful. Results feed the advisory prompt only; nothing here touches
// persistent state.
package availability

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Block is a half-open time interval [Start, End).
type Block struct {
	Start time.Time
	End   time.Time
}

// Minutes returns the block length in whole minutes.
func (b Block) Minutes() int {
	return int(b.End.Sub(b.Start) / time.Minute)
}

// Windows describes when the owner is willing to work.
//
// Weekdays get a daytime window; Monday through Thursday additionally get a
// late-evening window that may roll past midnight (LateEnd before LateStart
// means "ends tomorrow").
type Windows struct {
	Location  *time.Location
	WorkStart HHMM
	WorkEnd   HHMM
	LateStart HHMM
	LateEnd   HHMM
	MinBlock  time.Duration
}

// HHMM is a wall-clock time of day.
type HHMM struct {
	Hour   int
	Minute int
}

// ParseHHMM parses "HH:MM". The fallback is used when s is empty or
// malformed, so a missing env var never breaks availability.
func ParseHHMM(s, fallback string) HHMM {
	parse := func(v string) (HHMM, bool) {
		parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
		if len(parts) != 2 {
			return HHMM{}, false
		}
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
			return HHMM{}, false
		}
		return HHMM{Hour: h, Minute: m}, true
	}
	if t, ok := parse(s); ok {
		return t
	}
	t, _ := parse(fallback)
	return t
}

// at anchors the wall-clock time on a calendar day in loc.
func (t HHMM) at(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// Merge sorts blocks by start and coalesces overlapping or touching ones.
func Merge(blocks []Block) []Block {
	if len(blocks) == 0 {
		return nil
	}
	sorted := make([]Block, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []Block{sorted[0]}
	for _, b := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !b.Start.After(last.End) {
			if b.End.After(last.End) {
				last.End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}
	return merged
}

// Subtract removes every busy interval from window, returning the remaining
// pieces in order.
func Subtract(window Block, busy []Block) []Block {
	out := []Block{window}
	for _, b := range busy {
		if !b.End.After(window.Start) || !b.Start.Before(window.End) {
			continue
		}
		var next []Block
		for _, c := range out {
			if !b.End.After(c.Start) || !b.Start.Before(c.End) {
				next = append(next, c)
				continue
			}
			if b.Start.After(c.Start) {
				next = append(next, Block{Start: c.Start, End: b.Start})
			}
			if b.End.Before(c.End) {
				next = append(next, Block{Start: b.End, End: c.End})
			}
		}
		out = next
	}
	return out
}

// FreeBlocks computes the free blocks between now and end given the busy
// set, honoring the configured windows and minimum block length. Inputs and
// outputs are UTC; window layout happens in w.Location.
func FreeBlocks(busy []Block, now, end time.Time, w Windows) []Block {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}

	nowLocal := now.In(loc)
	endLocal := end.In(loc)

	// Clip busy intervals to the horizon, then merge.
	var clipped []Block
	for _, b := range busy {
		bs, be := b.Start.In(loc), b.End.In(loc)
		if !be.After(nowLocal) || !bs.Before(endLocal) {
			continue
		}
		if bs.Before(nowLocal) {
			bs = nowLocal
		}
		if be.After(endLocal) {
			be = endLocal
		}
		clipped = append(clipped, Block{Start: bs, End: be})
	}
	clipped = Merge(clipped)

	// Lay out the allowed windows for every day in the horizon (inclusive).
	day0 := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc)
	days := int(endLocal.Sub(day0).Hours()/24) + 1

	var windows []Block
	for i := 0; i <= days; i++ {
		day := day0.AddDate(0, 0, i)
		dow := day.Weekday()

		// Daytime window Monday-Friday.
		if dow >= time.Monday && dow <= time.Friday {
			windows = append(windows, Block{
				Start: w.WorkStart.at(day, loc),
				End:   w.WorkEnd.at(day, loc),
			})
		}
		// Late-evening window Monday-Thursday; may end the next day.
		if dow >= time.Monday && dow <= time.Thursday {
			ls := w.LateStart.at(day, loc)
			le := w.LateEnd.at(day, loc)
			if !le.After(ls) {
				le = w.LateEnd.at(day.AddDate(0, 0, 1), loc)
			}
			windows = append(windows, Block{Start: ls, End: le})
		}
	}

	minBlock := w.MinBlock
	if minBlock <= 0 {
		minBlock = 30 * time.Minute
	}

	var free []Block
	for _, win := range windows {
		if win.Start.Before(nowLocal) {
			win.Start = nowLocal
		}
		if win.End.After(endLocal) {
			win.End = endLocal
		}
		if !win.Start.Before(win.End) {
			continue
		}
		for _, piece := range Subtract(win, clipped) {
			if piece.End.Sub(piece.Start) >= minBlock {
				free = append(free, piece)
			}
		}
	}

	free = Merge(free)
	for i := range free {
		free[i].Start = free[i].Start.UTC()
		free[i].End = free[i].End.UTC()
	}
	return free
}

// FormatBlocks renders blocks as short one-per-line strings for the
// advisory prompt, in the given location.
func FormatBlocks(blocks []Block, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		s := b.Start.In(loc)
		e := b.End.In(loc)
		out = append(out, fmt.Sprintf("%s – %s (%d min)",
			fmtLocal(s), fmtLocal(e), b.Minutes()))
	}
	return out
}

func fmtLocal(t time.Time) string {
	s := t.Format("Mon 3:04 PM")
	return s
}
