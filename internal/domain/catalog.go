package domain

type Train struct {
	ID     int64  `json:"train_id"`
	Name   string `json:"train_name"`
	Number string `json:"train_number"`
}

// Route is one priced leg a train runs. Times are wall-clock "HH:MM".
type Route struct {
	ID                 int64  `json:"route_id"`
	TrainID            int64  `json:"train_id"`
	SourceStation      string `json:"source_station"`
	DestinationStation string `json:"destination_station"`
	DepartureTime      string `json:"departure_time"`
	ArrivalTime        string `json:"arrival_time"`
	PriceCents         int64  `json:"price_cents"`
}

func (r Route) Scope() Scope {
	return Scope{TrainID: r.TrainID, RouteID: r.ID}
}

// RouteSummary is a search hit with live availability.
type RouteSummary struct {
	Train          Train `json:"train"`
	Route          Route `json:"route"`
	AvailableSeats int   `json:"available_seats"`
}
