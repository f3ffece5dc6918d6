// Package domination converts the capture ledger of a domination session into
// per-team scores. Nothing here touches storage: callers pass the ledger in
// and persist the result.
package domination

import (
	"math"
	"sort"
	"time"

	"fieldops/internal/domain"
)

// Input is everything the calculator needs for one session.
type Input struct {
	Session  domain.DominationSession
	Captures []domain.DominationCapture
	Now      time.Time
}

// Interval is one span of uninterrupted control of a point by a team.
type Interval struct {
	PointID string
	TeamID  string
	From    time.Time
	To      time.Time
	Points  int
}

// SortCaptures orders captures by time, then by insertion sequence so that
// simultaneous captures have a stable winner.
func SortCaptures(captures []domain.DominationCapture) {
	sort.SliceStable(captures, func(i, j int) bool {
		a, b := captures[i], captures[j]
		if !a.CapturedAt.Equal(b.CapturedAt) {
			return a.CapturedAt.Before(b.CapturedAt)
		}
		return a.Seq < b.Seq
	})
}

// EffectiveNow clamps now to the scheduled end of the session, if any.
func EffectiveNow(s domain.DominationSession, now time.Time) time.Time {
	if end, ok := s.EndsAt(); ok && now.After(end) {
		return end
	}
	return now
}

// TickPoints converts a control duration into points.
func TickPoints(d time.Duration, tickIntervalSec, pointsPerTick int) int {
	if d <= 0 || tickIntervalSec <= 0 {
		return 0
	}
	return int(math.Floor(d.Seconds() / float64(tickIntervalSec) * float64(pointsPerTick)))
}

// Intervals replays the captures of every point and returns the control
// intervals up to the effective now. Captures are not mutated.
func Intervals(in Input) []Interval {
	now := EffectiveNow(in.Session, in.Now)
	byPoint := map[string][]domain.DominationCapture{}
	var pointIDs []string
	for _, c := range in.Captures {
		if _, ok := byPoint[c.PointID]; !ok {
			pointIDs = append(pointIDs, c.PointID)
		}
		byPoint[c.PointID] = append(byPoint[c.PointID], c)
	}
	sort.Strings(pointIDs)

	var out []Interval
	for _, pointID := range pointIDs {
		captures := append([]domain.DominationCapture(nil), byPoint[pointID]...)
		SortCaptures(captures)
		for i, c := range captures {
			end := now
			if i+1 < len(captures) {
				end = captures[i+1].CapturedAt
			}
			if end.After(now) {
				end = now
			}
			out = append(out, Interval{
				PointID: pointID,
				TeamID:  c.TeamID,
				From:    c.CapturedAt,
				To:      end,
				Points:  TickPoints(end.Sub(c.CapturedAt), in.Session.TickIntervalSec, in.Session.PointsPerTick),
			})
		}
	}
	return out
}

// Calculate returns the total points per team id.
func Calculate(in Input) map[string]int {
	totals := map[string]int{}
	for _, iv := range Intervals(in) {
		totals[iv.TeamID] += iv.Points
	}
	return totals
}

// Controllers returns the most recent capture of every point.
func Controllers(captures []domain.DominationCapture) map[string]domain.DominationCapture {
	sorted := append([]domain.DominationCapture(nil), captures...)
	SortCaptures(sorted)
	out := map[string]domain.DominationCapture{}
	for _, c := range sorted {
		out[c.PointID] = c
	}
	return out
}
