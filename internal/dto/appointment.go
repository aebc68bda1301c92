package dto

type CreateAppointmentRequest struct {
	ExpertID        string `json:"expert_id" validate:"required" example:"expert_abc123"`
	StartAt         string `json:"start_at" validate:"required" example:"2024-01-20T15:00:00Z"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=15,max=180" example:"60"`
	CouponCode      string `json:"coupon_code,omitempty" validate:"omitempty,coupon_code" example:"WELCOME10"`
	Notes           string `json:"notes,omitempty" validate:"max=2000" example:"Career switch advice"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500" example:"Schedule conflict"`
}

type AppointmentResponse struct {
	ID           string  `json:"id" example:"appt_abc123"`
	CustomerID   string  `json:"customer_id" example:"user_abc123"`
	ExpertID     string  `json:"expert_id" example:"expert_abc123"`
	ExpertUserID string  `json:"expert_user_id" example:"user_xyz789"`
	StartAt      string  `json:"start_at" example:"2024-01-20T15:00:00Z"`
	EndAt        string  `json:"end_at" example:"2024-01-20T16:00:00Z"`
	Status       string  `json:"status" example:"confirmed"`
	Price        int64   `json:"price" example:"250000"`
	Discount     int64   `json:"discount" example:"25000"`
	AmountDue    int64   `json:"amount_due" example:"225000"`
	Currency     string  `json:"currency" example:"INR"`
	CouponCode   string  `json:"coupon_code,omitempty" example:"WELCOME10"`
	Notes        string  `json:"notes,omitempty"`
	CancelReason string  `json:"cancel_reason,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
	CreatedAt    string  `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit" example:"20"`
	Offset       int                   `json:"offset" example:"0"`
}
