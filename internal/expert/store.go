package expert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"gorm.io/gorm"
)

const DefaultCollection = "experts"

var ErrSearchUnavailable = errors.New("vector search not configured")

type Store struct {
	db         *gorm.DB
	qdrant     *qdrant.Client
	collection string
}

func NewStore(db *gorm.DB, qdrantClient *qdrant.Client) *Store {
	return &Store{
		db:         db,
		qdrant:     qdrantClient,
		collection: DefaultCollection,
	}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Expert{}, &Review{})
}

// EnsureCollection creates the vector collection when it does not exist.
func (s *Store) EnsureCollection(ctx context.Context, dim int) error {
	if s.qdrant == nil {
		return ErrSearchUnavailable
	}

	exists, err := s.qdrant.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	return s.qdrant.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (s *Store) Create(ctx context.Context, e *Expert) error {
	if e.ID == "" {
		e.ID = shared.NewID("expert_")
	}
	if e.Currency == "" {
		e.Currency = DefaultCurrency
	}

	if _, err := s.GetByUserID(ctx, e.UserID); err == nil {
		return shared.ErrConflict
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	return s.db.WithContext(ctx).Create(e).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*Expert, error) {
	var e Expert
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &e, err
}

func (s *Store) GetByUserID(ctx context.Context, userID string) (*Expert, error) {
	var e Expert
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &e, err
}

func (s *Store) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Expert, error) {
	var experts []*Expert
	q := s.db.WithContext(ctx).Where("is_available = ?", true)
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.VerifiedOnly {
		q = q.Where("is_verified = ?", true)
	}
	err := q.Order("avg_rating DESC").Order("total_reviews DESC").Order("created_at ASC").
		Limit(limit).Offset(offset).Find(&experts).Error
	return experts, err
}

func (s *Store) Update(ctx context.Context, e *Expert) error {
	return s.db.WithContext(ctx).Save(e).Error
}

func (s *Store) SetVerified(ctx context.Context, id string, verified bool) error {
	result := s.db.WithContext(ctx).Model(&Expert{}).Where("id = ?", id).Update("is_verified", verified)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementSessions(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&Expert{}).Where("id = ?", id).
		UpdateColumn("total_sessions", gorm.Expr("total_sessions + 1")).Error
}

func (s *Store) CreateReview(ctx context.Context, review *Review) error {
	if review.ID == "" {
		review.ID = shared.NewID("review_")
	}

	if _, err := s.GetUserReview(ctx, review.UserID, review.ExpertID); err == nil {
		return shared.ErrConflict
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	if err := s.db.WithContext(ctx).Create(review).Error; err != nil {
		return err
	}
	return s.recalculateRating(ctx, review.ExpertID)
}

func (s *Store) GetReviews(ctx context.Context, expertID string, limit, offset int) ([]*Review, error) {
	var reviews []*Review
	err := s.db.WithContext(ctx).Where("expert_id = ?", expertID).
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&reviews).Error
	return reviews, err
}

func (s *Store) GetUserReview(ctx context.Context, userID, expertID string) (*Review, error) {
	var review Review
	err := s.db.WithContext(ctx).Where("user_id = ? AND expert_id = ?", userID, expertID).First(&review).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &review, err
}

func (s *Store) recalculateRating(ctx context.Context, expertID string) error {
	var result struct {
		Avg   float32
		Count int64
	}
	err := s.db.WithContext(ctx).Model(&Review{}).
		Select("AVG(rating) as avg, COUNT(*) as count").
		Where("expert_id = ?", expertID).
		Scan(&result).Error
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Model(&Expert{}).Where("id = ?", expertID).
		Updates(map[string]any{
			"avg_rating":    result.Avg,
			"total_reviews": result.Count,
		}).Error
}

// SearchText is the SQL fallback for search: every query term must appear
// in the expert's indexed text.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]*Expert, error) {
	var experts []*Expert
	q := s.db.WithContext(ctx).Where("is_available = ?", true)
	for _, term := range tokenize(query) {
		q = q.Where("search_text LIKE ?", "%"+term+"%")
	}
	err := q.Order("avg_rating DESC").Limit(limit).Find(&experts).Error
	return experts, err
}

// pointID maps an expert id to the UUID form qdrant requires.
func pointID(expertID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("expert:"+expertID)).String()
}

func (s *Store) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*Expert, error) {
	if s.qdrant == nil {
		return nil, ErrSearchUnavailable
	}

	results, err := s.qdrant.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		if v, ok := r.Payload["expert_id"]; ok {
			if id := v.GetStringValue(); id != "" {
				ids = append(ids, id)
			}
		}
	}

	if len(ids) == 0 {
		return []*Expert{}, nil
	}

	var experts []*Expert
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&experts).Error; err != nil {
		return nil, err
	}

	// keep qdrant's ranking
	byID := make(map[string]*Expert, len(experts))
	for _, e := range experts {
		byID[e.ID] = e
	}
	ordered := make([]*Expert, 0, len(experts))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

func (s *Store) UpsertEmbedding(ctx context.Context, e *Expert, embedding []float32) error {
	if s.qdrant == nil {
		return ErrSearchUnavailable
	}

	_, err := s.qdrant.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(pointID(e.ID)),
				Vectors: qdrant.NewVectors(embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"expert_id": e.ID,
					"category":  string(e.Category),
				}),
			},
		},
	})
	return err
}

func (s *Store) DeleteEmbedding(ctx context.Context, expertID string) error {
	if s.qdrant == nil {
		return ErrSearchUnavailable
	}

	_, err := s.qdrant.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(pointID(expertID))),
	})
	return err
}

func normalizeTags(tags []string) shared.StringSlice {
	seen := make(map[string]struct{}, len(tags))
	out := make(shared.StringSlice, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
