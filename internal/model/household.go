package model

// HouseholdMember is a person listed on a customer's record. Its Name is the
// join key used to link customers into a household.
type HouseholdMember struct {
	ID           int64  `json:"id"`
	CustomerID   int64  `json:"customer_id"`
	Name         string `json:"name"`
	Birthdate    string `json:"birthdate"`
	Relationship string `json:"relationship"`
}
