package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"fuelstation/backend/internal/cache"
	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/ingest"
	"fuelstation/backend/internal/ocr"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Extractor reads pump serial and nozzle counters off a meter photo.
type Extractor interface {
	Extract(ctx context.Context, image []byte, contentType string) (*ocr.Result, error)
}

type Service struct {
	repo      store.Repository
	pipeline  *ingest.Pipeline
	extractor Extractor
	nozzles   cache.NozzleCache
	cacheTTL  time.Duration
	validate  *validator.Validate
	logger    *zap.Logger
}

type Option func(*Service)

func WithExtractor(extractor Extractor) Option {
	return func(s *Service) {
		s.extractor = extractor
	}
}

func WithNozzleCache(c cache.NozzleCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.nozzles = c
		}
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.Named("service")
		}
	}
}

func New(repo store.Repository, pipeline *ingest.Pipeline, opts ...Option) *Service {
	validate := validator.New()
	validate.RegisterTagNameFunc(jsonFieldName)

	s := &Service{
		repo:     repo,
		pipeline: pipeline,
		nozzles:  cache.NoopNozzleCache{},
		cacheTTL: 5 * time.Minute,
		validate: validate,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stationScope resolves which station a request acts on and checks the
// actor may access it. Station-bound roles default to their own station.
func (s *Service) stationScope(ctx context.Context, requested string) (domain.Actor, string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, "", store.ErrForbidden
	}

	stationID := strings.TrimSpace(requested)
	if stationID == "" {
		stationID = actor.StationID
	}
	if stationID == "" {
		return domain.Actor{}, "", fmt.Errorf("%w: station_id is required", store.ErrValidation)
	}
	if actor.Role != domain.RoleSuperadmin && actor.StationID != stationID {
		return domain.Actor{}, "", store.ErrForbidden
	}
	return actor, stationID, nil
}

func requireRole(actor domain.Actor, roles ...string) error {
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return store.ErrForbidden
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, validationMessage(fe))
	}
	return fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(messages, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "datetime":
		return fmt.Sprintf("%s must match %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	default:
		return name
	}
}

func (s *Service) logEvent(ctx context.Context, stationID string, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateEventLog(ctx, newEventLog(ctx, stationID, action, entityType, entityID, detail, s.pipeline.Now())); err != nil {
		s.logger.Warn("failed to write event log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

func newEventLog(ctx context.Context, stationID string, action string, entityType string, entityID string, detail string, at time.Time) domain.EventLog {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	return domain.EventLog{
		ID:            xid.New("evt"),
		StationID:     stationID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     at,
	}
}

func parseDay(date string, now time.Time) (string, time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return day.Format(domain.ReadingDateLayout), day, nil
	}
	parsed, err := time.Parse(domain.ReadingDateLayout, date)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
	}
	return date, parsed.UTC(), nil
}
