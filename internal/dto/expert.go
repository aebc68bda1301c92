package dto

type CreateExpertRequest struct {
	Headline        string   `json:"headline" validate:"required,min=3,max=140" example:"Senior Go engineer, 10y in fintech"`
	Bio             string   `json:"bio,omitempty" validate:"max=4000" example:"I help teams scale backends."`
	Category        string   `json:"category" validate:"required,oneof=career technology business finance health legal education design other" example:"technology"`
	Skills          []string `json:"skills,omitempty" validate:"max=20,dive,min=1,max=40" example:"go,postgres,kubernetes"`
	Languages       []string `json:"languages,omitempty" validate:"max=10,dive,min=2,max=30" example:"english,hindi"`
	HourlyRate      int64    `json:"hourly_rate" validate:"min=0" example:"250000"`
	Currency        string   `json:"currency,omitempty" validate:"omitempty,len=3" example:"INR"`
	YearsExperience int      `json:"years_experience" validate:"min=0,max=70" example:"10"`
}

type UpdateExpertRequest struct {
	Headline        *string  `json:"headline,omitempty" validate:"omitempty,min=3,max=140"`
	Bio             *string  `json:"bio,omitempty" validate:"omitempty,max=4000"`
	Category        *string  `json:"category,omitempty" validate:"omitempty,oneof=career technology business finance health legal education design other"`
	Skills          []string `json:"skills,omitempty" validate:"max=20,dive,min=1,max=40"`
	Languages       []string `json:"languages,omitempty" validate:"max=10,dive,min=2,max=30"`
	HourlyRate      *int64   `json:"hourly_rate,omitempty" validate:"omitempty,min=0"`
	YearsExperience *int     `json:"years_experience,omitempty" validate:"omitempty,min=0,max=70"`
	IsAvailable     *bool    `json:"is_available,omitempty"`
}

type ExpertResponse struct {
	ID              string   `json:"id" example:"expert_abc123"`
	UserID          string   `json:"user_id" example:"user_xyz789"`
	Name            string   `json:"name,omitempty" example:"Jane Doe"`
	AvatarURL       string   `json:"avatar_url,omitempty"`
	Headline        string   `json:"headline" example:"Senior Go engineer"`
	Bio             string   `json:"bio,omitempty"`
	Category        string   `json:"category" example:"technology"`
	Skills          []string `json:"skills,omitempty" example:"go,postgres"`
	Languages       []string `json:"languages,omitempty" example:"english"`
	HourlyRate      int64    `json:"hourly_rate" example:"250000"`
	Currency        string   `json:"currency" example:"INR"`
	YearsExperience int      `json:"years_experience" example:"10"`
	IsVerified      bool     `json:"is_verified" example:"true"`
	IsAvailable     bool     `json:"is_available" example:"true"`
	AvgRating       float32  `json:"avg_rating" example:"4.8"`
	TotalReviews    int64    `json:"total_reviews" example:"42"`
	TotalSessions   int64    `json:"total_sessions" example:"120"`
	CreatedAt       string   `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type ExpertListResponse struct {
	Experts []ExpertResponse `json:"experts"`
	Limit   int              `json:"limit" example:"20"`
	Offset  int              `json:"offset" example:"0"`
}

type ExpertSearchResponse struct {
	Experts []ExpertResponse `json:"experts"`
}

type VerifyExpertRequest struct {
	Verified bool `json:"verified" example:"true"`
}

type CreateReviewRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5" example:"5"`
	Body   string `json:"body,omitempty" validate:"max=2000" example:"Super helpful session!"`
}

type ReviewResponse struct {
	ID        string `json:"id" example:"review_abc123"`
	ExpertID  string `json:"expert_id" example:"expert_abc123"`
	UserID    string `json:"user_id" example:"user_xyz789"`
	Rating    int    `json:"rating" example:"5"`
	Body      string `json:"body,omitempty" example:"Great session!"`
	CreatedAt string `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type ReviewListResponse struct {
	Reviews []ReviewResponse `json:"reviews"`
	Limit   int              `json:"limit" example:"20"`
	Offset  int              `json:"offset" example:"0"`
}
