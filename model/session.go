package model

import "time"

// User credentials of an admin or a worker
type User struct {
	Username     string
	Role         Role
	WorkerID     string
	PasswordHash string
}

// Session authenticated client
type Session struct {
	Token     string    `json:"token"`
	Role      Role      `json:"role"`
	Username  string    `json:"username,omitempty"`
	WorkerID  string    `json:"worker_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedInfo external wearable hub streaming readings over websocket
type FeedInfo struct {
	ID   uint   `validate:"required"`
	URL  string `conform:"trim" validate:"required,websocket"`
	Name string `conform:"trim" validate:"required"`
}
