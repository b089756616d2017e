package dto

import "time"

// UserResponseDTO is the public view of a user. Credentials and processor ids are never included.
type UserResponseDTO struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username,omitempty"`
	DisplayName        string    `json:"name,omitempty"`
	Email              string    `json:"email,omitempty"`
	AvatarURL          string    `json:"avatarUrl,omitempty"`
	SubscriptionPlan   string    `json:"subscriptionPlan"`
	SubscriptionStatus string    `json:"subscriptionStatus"`
	CreatedAt          time.Time `json:"createdAt"`
}
