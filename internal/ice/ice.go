package ice

import (
	"context"
	"log/slog"

	"github.com/eleven-am/consult-backend/internal/dto"
	"github.com/pion/webrtc/v4"
)

// Service resolves the ICE servers handed to a browser. Hosted Metered
// credentials win, then coturn REST credentials, then the static list. STUN
// entries of the static list are always included.
type Service struct {
	metered *Metered
	turn    *TURNREST
	static  []webrtc.ICEServer
	logger  *slog.Logger
}

func NewService(metered *Metered, turn *TURNREST, static []webrtc.ICEServer, logger *slog.Logger) *Service {
	return &Service{
		metered: metered,
		turn:    turn,
		static:  static,
		logger:  logger.With("component", "ice"),
	}
}

func (s *Service) Servers(ctx context.Context, userID string) []webrtc.ICEServer {
	if s.metered != nil {
		servers, err := s.metered.Servers(ctx)
		if err == nil {
			return append(servers, stunOnly(s.static)...)
		}
		s.logger.Warn("metered unavailable, falling back", "error", err)
	}

	if s.turn != nil {
		server, err := s.turn.Server(userID)
		if err == nil {
			return append([]webrtc.ICEServer{server}, stunOnly(s.static)...)
		}
		s.logger.Warn("turn rest credentials failed", "error", err, "user_id", userID)
	}

	out := make([]webrtc.ICEServer, len(s.static))
	copy(out, s.static)
	return out
}

func ToResponse(servers []webrtc.ICEServer) dto.ICEServersResponse {
	out := make([]dto.ICEServerResponse, 0, len(servers))
	for _, s := range servers {
		out = append(out, dto.ICEServerResponse{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: Credential(s),
		})
	}
	return dto.ICEServersResponse{ICEServers: out}
}
