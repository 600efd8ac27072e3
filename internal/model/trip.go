package model

import "time"

// Trip is an entry of the caller's current trip listing (GET /viajes/).
type Trip struct {
	ID      uint64    `json:"id"`
	Origen  string    `json:"origen"`
	Destino string    `json:"destino"`
	Salida  time.Time `json:"salida"`
}

// ContainsTrip reports whether id is part of listing.
func ContainsTrip(listing []Trip, id uint64) bool {
	for _, t := range listing {
		if t.ID == id {
			return true
		}
	}
	return false
}
