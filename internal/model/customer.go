package model

import "time"

type Customer struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Address           string    `json:"address"`
	City              string    `json:"city"`
	State             string    `json:"state"`
	Zip               string    `json:"zip"`
	Phone             string    `json:"phone"`
	DescriptionOfNeed string    `json:"description_of_need"`
	AppliedBefore     string    `json:"applied_before"`
	SignupDate        time.Time `json:"signup_date"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CustomerInput holds the editable fields of a customer.
type CustomerInput struct {
	Name              string     `json:"name"`
	Address           string     `json:"address"`
	City              string     `json:"city"`
	State             string     `json:"state"`
	Zip               string     `json:"zip"`
	Phone             string     `json:"phone"`
	DescriptionOfNeed string     `json:"description_of_need"`
	AppliedBefore     string     `json:"applied_before"`
	SignupDate        *time.Time `json:"signup_date,omitempty"`
}
