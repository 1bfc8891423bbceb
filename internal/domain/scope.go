package domain

import "fmt"

// Scope identifies one schedulable seat inventory: a train running a route.
// Seat availability and queue positions are isolated per scope.
type Scope struct {
	TrainID int64
	RouteID int64
}

func NewScope(trainID, routeID int64) Scope {
	return Scope{TrainID: trainID, RouteID: routeID}
}

func (s Scope) String() string {
	return fmt.Sprintf("train=%d route=%d", s.TrainID, s.RouteID)
}
