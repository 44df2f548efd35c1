package dto

// UpdateCredentialsRequest is the body of POST /api/update-credentials.
type UpdateCredentialsRequest struct {
	UID      string  `json:"uid" validate:"required"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8"`
}

// DeleteUserRequest is the body of POST /api/delete.
type DeleteUserRequest struct {
	UID       string `json:"uid" validate:"required"`
	Permanent bool   `json:"permanent"`
}
