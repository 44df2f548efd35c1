package dto

// SendMessageRequest posts a direct or program-wide message.
type SendMessageRequest struct {
	RecipientID *string `json:"recipient_id,omitempty"`
	ProgramID   *string `json:"program_id,omitempty"`
	Subject     string  `json:"subject" validate:"required,max=200"`
	Body        string  `json:"body" validate:"required"`
	Link        *string `json:"link,omitempty" validate:"omitempty,url"`
}
