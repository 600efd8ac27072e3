package model

// SeatSelection is a seat the user picked on a trip, with the price that was
// displayed when it was selected.
//
// Fields:
//  Numero – seat number on the vehicle.
//  Precio – displayed price.
type SeatSelection struct {
	Numero int   `json:"numero"`
	Precio Money `json:"precio"`
}

// SumPrices returns the total of the displayed seat prices.
func SumPrices(seats []SeatSelection) Money {
	var total Money
	for _, s := range seats {
		total += s.Precio
	}
	return total
}
