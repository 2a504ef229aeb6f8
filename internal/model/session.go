package model

import "time"

type Session struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
