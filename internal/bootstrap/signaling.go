package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/consult-backend/internal/appointment"
	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/calllog"
	"github.com/eleven-am/consult-backend/internal/chat"
	"github.com/eleven-am/consult-backend/internal/ice"
	"github.com/eleven-am/consult-backend/internal/signaling"
	"github.com/eleven-am/consult-backend/internal/user"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func ProvideICEService(cfg *Config, redisClient *redis.Client, log *slog.Logger) (*ice.Service, error) {
	static, err := ice.ParseServers(cfg.RTCICEServers)
	if err != nil {
		return nil, err
	}

	var metered *ice.Metered
	if cfg.MeteredApp != "" && cfg.MeteredAPIKey != "" {
		metered = ice.NewMetered(cfg.MeteredApp, cfg.MeteredAPIKey, redisClient)
	}

	var turn *ice.TURNREST
	if cfg.TURNSharedSecret != "" && len(cfg.TURNURLs) > 0 {
		turn, err = ice.NewTURNREST(cfg.TURNSharedSecret, cfg.TURNURLs, cfg.TURNPrefix, cfg.TURNCredentialTTL)
		if err != nil {
			return nil, err
		}
	}

	log.Info("ice servers configured",
		"metered", metered != nil,
		"turn_rest", turn != nil,
		"static", len(static),
	)
	return ice.NewService(metered, turn, static, log), nil
}

func ProvideChatService(store *chat.Store, users *user.Store, appointments *appointment.Service) *chat.Service {
	return chat.NewService(store, users, appointments)
}

func ProvideCallStore(redisClient *redis.Client) *signaling.CallStore {
	return signaling.NewCallStore(redisClient)
}

func ProvideSignalingMetrics(reg *prometheus.Registry) *signaling.Metrics {
	return signaling.NewMetrics(reg)
}

func ProvideBridge(lc fx.Lifecycle, redisClient *redis.Client, log *slog.Logger) *signaling.Bridge {
	bridge := signaling.NewBridge(redisClient, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return bridge.Close()
		},
	})
	return bridge
}

type HubParams struct {
	fx.In

	Lifecycle    fx.Lifecycle
	Config       *Config
	Store        *signaling.CallStore
	Bridge       *signaling.Bridge
	Metrics      *signaling.Metrics
	Appointments *appointment.Service
	Chat         *chat.Service
	CallLog      *calllog.Store
	Logger       *slog.Logger
}

func ProvideHub(p HubParams) *signaling.Hub {
	hub := signaling.NewHub(p.Store, p.Bridge, signaling.Config{
		RingTimeout:        p.Config.SignalRingTimeout,
		RequireAppointment: p.Config.SignalRequireAppointment,
		MessagesPerSecond:  p.Config.SignalMessagesPerSecond,
		MessageBurst:       p.Config.SignalMessageBurst,
	}, p.Logger,
		signaling.WithAuthorizer(p.Appointments),
		signaling.WithChat(p.Chat),
		signaling.WithRecorder(p.CallLog),
		signaling.WithMetrics(p.Metrics),
	)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			hub.Close()
			return nil
		},
	})
	return hub
}

func ProvideSignalingHandler(hub *signaling.Hub, store *signaling.CallStore, iceService *ice.Service, mw *auth.Middleware, cfg *Config, log *slog.Logger) *signaling.Handler {
	return signaling.NewHandler(hub, store, iceService, mw, cfg.AllowedOrigins, log)
}

var SignalingModule = fx.Options(
	fx.Provide(
		ProvideICEService,
		ProvideChatService,
		ProvideCallStore,
		ProvideSignalingMetrics,
		ProvideBridge,
		ProvideHub,
		ProvideSignalingHandler,
	),
)
