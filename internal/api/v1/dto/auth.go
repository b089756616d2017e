package dto

// CredentialsRequest is the body of the login and signup endpoints
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponseDTO is returned after a session is established
type AuthResponseDTO struct {
	User    UserResponseDTO `json:"user"`
	Message string          `json:"message"`
}

type MessageResponseDTO struct {
	Message string `json:"message"`
}

// AuthProvidersResponseDTO lists the login strategies enabled on this deployment
type AuthProvidersResponseDTO struct {
	Password bool `json:"password"`
	GitHub   bool `json:"github"`
	Google   bool `json:"google"`
}
