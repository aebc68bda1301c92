package dto

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100" example:"Jane Doe"`
	Email    string `json:"email" validate:"required,email" example:"jane@example.com"`
	Password string `json:"password" validate:"required,min=8,max=72" example:"correct-horse-battery"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"jane@example.com"`
	Password string `json:"password" validate:"required" example:"correct-horse-battery"`
}

type TokenResponse struct {
	Token     string     `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	ExpiresAt string     `json:"expires_at" example:"2024-01-22T10:30:00Z"`
	User      MeResponse `json:"user"`
}

type MeResponse struct {
	ID        string `json:"id" example:"user_abc123"`
	Email     string `json:"email,omitempty" example:"user@example.com"`
	Name      string `json:"name,omitempty" example:"John Doe"`
	AvatarURL string `json:"avatar_url,omitempty" example:"https://example.com/avatar.png"`
	Phone     string `json:"phone,omitempty" example:"+919876543210"`
	Role      string `json:"role" example:"customer"`
	IsBlocked bool   `json:"is_blocked,omitempty" example:"false"`
	CreatedAt string `json:"created_at,omitempty" example:"2024-01-15T10:30:00Z"`
}

type UpdateMeRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,min=2,max=100" example:"Jane D."`
	AvatarURL *string `json:"avatar_url,omitempty" validate:"omitempty,url" example:"https://example.com/me.png"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,min=6,max=20" example:"+919876543210"`
}

type UserListResponse struct {
	Users  []MeResponse `json:"users"`
	Limit  int          `json:"limit" example:"20"`
	Offset int          `json:"offset" example:"0"`
}

type BlockUserRequest struct {
	Blocked bool `json:"blocked" example:"true"`
}

type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=customer expert admin" example:"admin"`
}
