package model

import "time"

// EmployeeAction is one row of the append-only employee audit trail.
type EmployeeAction struct {
	ID         int64     `json:"id"`
	EventID    string    `json:"event_id"`
	EmployeeID int64     `json:"employee_id"`
	ActionType string    `json:"action_type"`
	TargetType string    `json:"target_type"`
	TargetID   *int64    `json:"target_id,omitempty"`
	Details    string    `json:"details"`
	CreatedAt  time.Time `json:"created_at"`
}

// FieldChange records a before/after value for one customer field.
type FieldChange struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	FieldName  string    `json:"field_name"`
	OldValue   *string   `json:"old_value,omitempty"`
	NewValue   *string   `json:"new_value,omitempty"`
	ChangedBy  *int64    `json:"changed_by,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}
