package model

import "time"

// Notification is an in-app notice listed by the notifications endpoints.
type Notification struct {
	ID       uint64    `json:"id"`
	Titulo   string    `json:"titulo"`
	Mensaje  string    `json:"mensaje"`
	Leida    bool      `json:"leida"`
	CreadaEn time.Time `json:"creada_en"`
}
