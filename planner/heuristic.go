package planner

import "math"

const DefaultCruiseSpeedKmh = 120

// Estimates the remaining travel time, in seconds, given the
// straight line distance to the destination.
type Heuristic interface {
	Seconds(distanceKm float64) int32
}

// Assumes travel at a constant speed. Not admissible if any vehicle
// in the feed is faster, so results are best effort.
type CruiseHeuristic struct {
	SpeedKmh float64
}

func (h CruiseHeuristic) Seconds(distanceKm float64) int32 {
	speed := h.SpeedKmh
	if speed <= 0 {
		speed = DefaultCruiseSpeedKmh
	}
	return int32(math.Floor(distanceKm * 3600 / speed))
}

// Plain Dijkstra.
type ZeroHeuristic struct{}

func (ZeroHeuristic) Seconds(float64) int32 { return 0 }
