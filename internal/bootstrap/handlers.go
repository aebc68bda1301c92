package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/consult-backend/internal/announcement"
	"github.com/eleven-am/consult-backend/internal/apikey"
	"github.com/eleven-am/consult-backend/internal/appointment"
	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/calllog"
	"github.com/eleven-am/consult-backend/internal/chat"
	"github.com/eleven-am/consult-backend/internal/coupon"
	"github.com/eleven-am/consult-backend/internal/expert"
	"github.com/eleven-am/consult-backend/internal/inquiry"
	"github.com/eleven-am/consult-backend/internal/notify"
	"github.com/eleven-am/consult-backend/internal/ratelimit"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/eleven-am/consult-backend/internal/signaling"
	"github.com/eleven-am/consult-backend/internal/user"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

func ProvideJWTValidator(cfg *Config) *auth.JWTValidator {
	return auth.NewJWTValidator(cfg.JWTKey, cfg.JWTTTL)
}

func ProvideJWTMiddleware(validator *auth.JWTValidator, userStore *user.Store) *auth.Middleware {
	return auth.NewMiddleware(validator, userStore)
}

// ProvideGoogleProvider returns a nil Provider when Google login is not
// configured, which disables the /auth/google routes.
func ProvideGoogleProvider(cfg *Config) user.Provider {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return nil
	}
	return user.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
}

func ProvideStateSigner(cfg *Config) *user.StateSigner {
	return user.NewStateSigner(cfg.JWTKey, cfg.CookieSecure, cfg.CookieDomain)
}

func ProvideNotifier(lc fx.Lifecycle, cfg *Config, log *slog.Logger) *notify.Notifier {
	var mailer notify.Mailer
	if cfg.SendGridAPIKey != "" {
		mailer = notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFromEmail)
	} else {
		log.Info("sendgrid not configured, emails are logged")
		mailer = notify.NewLogMailer(log)
	}

	n := notify.NewNotifier(mailer, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			n.Wait()
			return nil
		},
	})
	return n
}

func ProvideRateLimiter(lc fx.Lifecycle, cfg *Config) *ratelimit.Store {
	store := ratelimit.NewStore(ratelimit.Config{
		RequestsPerSecond: cfg.HTTPRequestsPerSecond,
		Burst:             cfg.HTTPBurst,
		IdleTTL:           ratelimit.DefaultConfig().IdleTTL,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			store.Close()
			return nil
		},
	})
	return store
}

func ProvideAppointmentService(store *appointment.Store, experts *expert.Store, coupons *coupon.Store, users *user.Store, notifier *notify.Notifier, log *slog.Logger) *appointment.Service {
	return appointment.NewService(store, experts, coupons, users, notifier, log.With("component", "appointment"))
}

func ProvideUserHandler(store *user.Store, tokens *auth.JWTValidator, google user.Provider, states *user.StateSigner, cfg *Config, log *slog.Logger) *user.Handler {
	return user.NewHandler(store, tokens, google, states, cfg.AllowedSchemes, cfg.AllowedOrigins, log.With("handler", "user"))
}

func ProvideUserAdminHandler(store *user.Store, log *slog.Logger) *user.AdminHandler {
	return user.NewAdminHandler(store, log.With("handler", "admin_users"))
}

func ProvideExpertHandler(store *expert.Store, users *user.Store, embeddings expert.EmbeddingService, appointments *appointment.Service, log *slog.Logger) *expert.Handler {
	return expert.NewHandler(store, users, embeddings, appointments, log.With("handler", "expert"))
}

func ProvideAppointmentHandler(service *appointment.Service, log *slog.Logger) *appointment.Handler {
	return appointment.NewHandler(service, log.With("handler", "appointment"))
}

func ProvideCouponHandler(store *coupon.Store, log *slog.Logger) *coupon.Handler {
	return coupon.NewHandler(store, log.With("handler", "coupon"))
}

func ProvideChatHandler(store *chat.Store, log *slog.Logger) *chat.Handler {
	return chat.NewHandler(store, log.With("handler", "chat"))
}

func ProvideAnnouncementHandler(store *announcement.Store, log *slog.Logger) *announcement.Handler {
	return announcement.NewHandler(store, log)
}

func ProvideInquiryHandler(store *inquiry.Store, notifier *notify.Notifier, cfg *Config, log *slog.Logger) *inquiry.Handler {
	return inquiry.NewHandler(store, notifier, cfg.AdminEmail, log)
}

func ProvideCallLogHandler(store *calllog.Store, log *slog.Logger) *calllog.Handler {
	return calllog.NewHandler(store, log)
}

func ProvideAPIKeyHandler(store *apikey.Store, log *slog.Logger) *apikey.Handler {
	return apikey.NewHandler(store, log)
}

type HandlerParams struct {
	fx.In

	User          *user.Handler
	UserAdmin     *user.AdminHandler
	Expert        *expert.Handler
	Appointment   *appointment.Handler
	Coupon        *coupon.Handler
	Chat          *chat.Handler
	Announcement  *announcement.Handler
	Inquiry       *inquiry.Handler
	CallLog       *calllog.Handler
	APIKey        *apikey.Handler
	Signaling     *signaling.Handler
	JWTMiddleware *auth.Middleware
	APIKeys       *apikey.Store
	Users         *user.Store
	Limiter       *ratelimit.Store
	Logger        *slog.Logger
}

func RegisterRoutes(e *echo.Echo, p HandlerParams) {
	api := e.Group("/v1")
	authenticate := p.JWTMiddleware.Authenticate
	limit := ratelimit.Middleware(p.Limiter)

	p.User.RegisterPublicRoutes(api.Group("/auth", limit))
	p.User.RegisterRoutes(api.Group("/auth", authenticate))

	p.Expert.RegisterRoutes(api.Group("/experts", authenticate))
	p.Expert.RegisterPublicRoutes(api.Group("/experts"), authenticate)

	p.Appointment.RegisterRoutes(api.Group("/appointments", authenticate))
	p.Coupon.RegisterPublicRoutes(api.Group("/coupons", limit))
	p.Chat.RegisterRoutes(api.Group("/conversations", authenticate))
	p.Announcement.RegisterRoutes(api.Group("/announcements", p.JWTMiddleware.OptionalAuthenticate))
	p.Inquiry.RegisterPublicRoutes(api.Group("/inquiries"), limit)
	p.CallLog.RegisterRoutes(api.Group("/calls", authenticate))
	p.Signaling.RegisterRoutes(api.Group("/signal"), authenticate)

	admin := api.Group("/admin",
		apikey.Authenticate(p.APIKeys, p.Users, authenticate, p.Logger),
		auth.RequireRole(shared.RoleAdmin),
	)
	p.UserAdmin.RegisterRoutes(admin)
	p.Expert.RegisterAdminRoutes(admin)
	p.Coupon.RegisterAdminRoutes(admin)
	p.Announcement.RegisterAdminRoutes(admin)
	p.Inquiry.RegisterAdminRoutes(admin)
	p.APIKey.RegisterRoutes(admin)
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideJWTValidator,
		ProvideJWTMiddleware,
		ProvideGoogleProvider,
		ProvideStateSigner,
		ProvideNotifier,
		ProvideRateLimiter,
		ProvideAppointmentService,
		ProvideUserHandler,
		ProvideUserAdminHandler,
		ProvideExpertHandler,
		ProvideAppointmentHandler,
		ProvideCouponHandler,
		ProvideChatHandler,
		ProvideAnnouncementHandler,
		ProvideInquiryHandler,
		ProvideCallLogHandler,
		ProvideAPIKeyHandler,
	),
	fx.Invoke(RegisterRoutes),
)
