package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/eleven-am/consult-backend/internal/announcement"
	"github.com/eleven-am/consult-backend/internal/apikey"
	"github.com/eleven-am/consult-backend/internal/appointment"
	"github.com/eleven-am/consult-backend/internal/calllog"
	"github.com/eleven-am/consult-backend/internal/chat"
	"github.com/eleven-am/consult-backend/internal/coupon"
	"github.com/eleven-am/consult-backend/internal/expert"
	"github.com/eleven-am/consult-backend/internal/inquiry"
	"github.com/eleven-am/consult-backend/internal/user"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const embeddingDimensions = 384

func ProvideUserStore(db *gorm.DB) *user.Store {
	return user.NewStore(db)
}

func ProvideExpertStore(db *gorm.DB, qdrantClient *qdrant.Client) *expert.Store {
	return expert.NewStore(db, qdrantClient)
}

func ProvideAppointmentStore(db *gorm.DB) *appointment.Store {
	return appointment.NewStore(db)
}

func ProvideCouponStore(db *gorm.DB) *coupon.Store {
	return coupon.NewStore(db)
}

func ProvideChatStore(db *gorm.DB) *chat.Store {
	return chat.NewStore(db)
}

func ProvideAnnouncementStore(db *gorm.DB) *announcement.Store {
	return announcement.NewStore(db)
}

func ProvideInquiryStore(db *gorm.DB) *inquiry.Store {
	return inquiry.NewStore(db)
}

func ProvideAPIKeyStore(db *gorm.DB) *apikey.Store {
	return apikey.NewStore(db)
}

func ProvideCallLogStore(redisClient *redis.Client) *calllog.Store {
	return calllog.NewStore(redisClient)
}

func ProvideEmbeddingService() expert.EmbeddingService {
	return expert.NewHashEmbedder(embeddingDimensions)
}

type migrator interface {
	Migrate() error
}

type MigrationParams struct {
	fx.In

	Users         *user.Store
	Experts       *expert.Store
	Appointments  *appointment.Store
	Coupons       *coupon.Store
	Chat          *chat.Store
	Announcements *announcement.Store
	Inquiries     *inquiry.Store
	APIKeys       *apikey.Store
	Embeddings    expert.EmbeddingService
	Logger        *slog.Logger
}

func RunMigrations(p MigrationParams) error {
	stores := []migrator{
		p.Users,
		p.Experts,
		p.Appointments,
		p.Coupons,
		p.Chat,
		p.Announcements,
		p.Inquiries,
		p.APIKeys,
	}
	for _, s := range stores {
		if err := s.Migrate(); err != nil {
			return err
		}
	}

	err := p.Experts.EnsureCollection(context.Background(), p.Embeddings.Dimensions())
	if err != nil && !errors.Is(err, expert.ErrSearchUnavailable) {
		p.Logger.Warn("failed to ensure expert vector collection", "error", err)
	}
	return nil
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideUserStore,
		ProvideExpertStore,
		ProvideAppointmentStore,
		ProvideCouponStore,
		ProvideChatStore,
		ProvideAnnouncementStore,
		ProvideInquiryStore,
		ProvideAPIKeyStore,
		ProvideCallLogStore,
		ProvideEmbeddingService,
	),
	fx.Invoke(RunMigrations),
)
