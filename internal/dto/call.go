package dto

type ICEServerResponse struct {
	URLs       []string `json:"urls" example:"turn:global.relay.metered.ca:443"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type ICEServersResponse struct {
	ICEServers []ICEServerResponse `json:"ice_servers"`
}

type ActiveCallResponse struct {
	CallID        string `json:"call_id" example:"call_1f0c..."`
	CallerID      string `json:"caller_id" example:"user_abc123"`
	CalleeID      string `json:"callee_id" example:"user_xyz789"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Media         string `json:"media" example:"video"`
	State         string `json:"state" example:"active"`
	CreatedAt     string `json:"created_at" example:"2024-01-15T10:30:00Z"`
	AnsweredAt    string `json:"answered_at,omitempty"`
}

type PresenceResponse struct {
	UserID string `json:"user_id" example:"user_xyz789"`
	Online bool   `json:"online" example:"true"`
}

type CallRecordResponse struct {
	CallID        string `json:"call_id"`
	CallerID      string `json:"caller_id"`
	CalleeID      string `json:"callee_id"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Media         string `json:"media" example:"audio"`
	EndReason     string `json:"end_reason" example:"hangup"`
	Answered      bool   `json:"answered"`
	DurationSecs  int64  `json:"duration_secs" example:"1800"`
	StartedAt     string `json:"started_at"`
	EndedAt       string `json:"ended_at"`
}

type CallHistoryResponse struct {
	Calls []CallRecordResponse `json:"calls"`
}

type CallMetricsResponse struct {
	Date         string `json:"date" example:"2024-01-15"`
	Hour         int    `json:"hour" example:"14"`
	Calls        int64  `json:"calls" example:"4"`
	Answered     int64  `json:"answered" example:"3"`
	Missed       int64  `json:"missed" example:"1"`
	Rejected     int64  `json:"rejected" example:"0"`
	DurationSecs int64  `json:"duration_secs" example:"5400"`
}

type CallMetricsListResponse struct {
	UserID  string                `json:"user_id"`
	Hours   int                   `json:"hours" example:"24"`
	Metrics []CallMetricsResponse `json:"metrics"`
}

type CallSummaryResponse struct {
	UserID       string  `json:"user_id"`
	Period       string  `json:"period" example:"7d"`
	TotalCalls   int64   `json:"total_calls" example:"40"`
	Answered     int64   `json:"answered" example:"35"`
	Missed       int64   `json:"missed" example:"3"`
	Rejected     int64   `json:"rejected" example:"2"`
	DurationSecs int64   `json:"duration_secs" example:"72000"`
	AnswerRate   float64 `json:"answer_rate" example:"87.5"`
}
