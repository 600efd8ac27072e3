// Package queue defines the events the client emits and the broker
// plumbing around them.
package queue

import (
	"time"

	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// ReservationConfirmedQueue is the durable queue confirmed reservations
// are published to.
const ReservationConfirmedQueue = "reservation.confirmed"

// ReservationConfirmedEvent is published when a checkout completes. It
// carries enough to write a receipt without calling the API again.
type ReservationConfirmedEvent struct {
	ReservationID uint64      `json:"reservation_id"`
	UserID        uint64      `json:"user_id,omitempty"`
	TripID        uint64      `json:"trip_id"`
	Seats         []int       `json:"seats"`
	Total         model.Money `json:"total"`
	Method        string      `json:"method"`
	PaymentID     uint64      `json:"payment_id,omitempty"`
	ConfirmedAt   time.Time   `json:"confirmed_at"`
}
