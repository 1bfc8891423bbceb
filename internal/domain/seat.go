package domain

type BerthType string

const (
	BerthLower     BerthType = "Lower"
	BerthMiddle    BerthType = "Middle"
	BerthUpper     BerthType = "Upper"
	BerthSideLower BerthType = "SideLower"
	BerthSideUpper BerthType = "SideUpper"
)

// IsLower reports berths reachable without climbing.
func (b BerthType) IsLower() bool {
	return b == BerthLower || b == BerthSideLower
}

type Seat struct {
	ID          int64     `json:"seat_id"`
	TrainID     int64     `json:"train_id"`
	RouteID     int64     `json:"route_id"`
	Compartment string    `json:"compartment"`
	ClassType   string    `json:"class_type"`
	SeatNumber  string    `json:"seat_number"`
	BerthType   BerthType `json:"berth_type"`
	Available   bool      `json:"available"`
}

func (s Seat) Scope() Scope {
	return Scope{TrainID: s.TrainID, RouteID: s.RouteID}
}

// CompartmentLayout describes one compartment of a train's seat topology.
// Berths are listed in seat-number order.
type CompartmentLayout struct {
	Name      string      `yaml:"name" json:"name"`
	ClassType string      `yaml:"class_type" json:"class_type"`
	Berths    []BerthType `yaml:"berths" json:"berths"`
}
