package models

import "time"

type Beacon struct {
	ID       string
	Building string
	Floor    string
	Label    string
	Active   bool
}

// ProximityEdge is a directed link between two beacons. Priority is the search
// ring the target falls in, not a distance.
type ProximityEdge struct {
	FromBeacon string
	ToBeacon   string
	Priority   int
}

type Guard struct {
	ID             string
	Name           string
	CurrentBeacon  *string // nil while the location is unknown
	OnDuty         bool
	Available      bool // on duty and holding no active assignment; derived by the store
	LastLocationAt *time.Time
}
