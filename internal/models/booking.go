package models

import "time"

// Booking is the record driven through the payment lifecycle. ID doubles as
// the external payment reference sent to the provider; it is generated once
// at booking time and never reused across bookings.
type Booking struct {
	ID              string    `json:"id"`
	ServiceID       string    `json:"service_id"`
	ServiceName     string    `json:"service_name"`
	Category        string    `json:"category"`
	Amount          int64     `json:"amount"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Status          string    `json:"status"`
	CheckoutID      string    `json:"checkout_id,omitempty"`
	TransactionCode string    `json:"transaction_code,omitempty"`
	UserPhone       string    `json:"user_phone"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PaymentReference returns the external reference used for provider lookups.
func (b *Booking) PaymentReference() string {
	return b.ID
}

// Terminal reports whether the booking has left the Pending state.
func (b *Booking) Terminal() bool {
	return b.Status != StatusPending
}
