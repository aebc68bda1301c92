package dto

type CreateAnnouncementRequest struct {
	Title     string  `json:"title" validate:"required,min=3,max=140" example:"Scheduled maintenance"`
	Body      string  `json:"body" validate:"required,max=4000" example:"Calls may drop between 02:00 and 02:30 UTC."`
	Audience  string  `json:"audience" validate:"required,oneof=all customers experts" example:"all"`
	ExpiresAt *string `json:"expires_at,omitempty" example:"2024-02-01T00:00:00Z"`
}

type AnnouncementResponse struct {
	ID          string  `json:"id" example:"ann_abc123"`
	Title       string  `json:"title" example:"Scheduled maintenance"`
	Body        string  `json:"body"`
	Audience    string  `json:"audience" example:"all"`
	PublishedAt string  `json:"published_at" example:"2024-01-15T10:30:00Z"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}

type AnnouncementListResponse struct {
	Announcements []AnnouncementResponse `json:"announcements"`
}

type CreateInquiryRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=100" example:"Jane Doe"`
	Email   string `json:"email" validate:"required,email" example:"jane@example.com"`
	Subject string `json:"subject" validate:"required,min=3,max=140" example:"Becoming an expert"`
	Message string `json:"message" validate:"required,min=10,max=4000" example:"How do I get verified as an expert?"`
}

type InquiryResponse struct {
	ID         string  `json:"id" example:"inq_abc123"`
	Name       string  `json:"name" example:"Jane Doe"`
	Email      string  `json:"email" example:"jane@example.com"`
	Subject    string  `json:"subject"`
	Message    string  `json:"message"`
	Status     string  `json:"status" example:"open"`
	ResolvedAt *string `json:"resolved_at,omitempty"`
	CreatedAt  string  `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type InquiryListResponse struct {
	Inquiries []InquiryResponse `json:"inquiries"`
	Limit     int               `json:"limit" example:"20"`
	Offset    int               `json:"offset" example:"0"`
}
