package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
)

var errInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
	logger    *zap.Logger
}

type UserStore interface {
	GetStation(ctx context.Context, stationID string) (*domain.Station, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password  string
	role      string
	stationID string
	active    bool
	created   time.Time
}

type stationClaims struct {
	jwtlib.RegisteredClaims
	Role      string `json:"role"`
	StationID string `json:"station_id,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore, logger *zap.Logger) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
		logger:    logger.Named("auth"),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	manager.bootstrapUsers(ctx)
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	refreshCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	a.bootstrapUsers(refreshCtx)
	cancel()

	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok || !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred.role, cred.stationID, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		StationID:   cred.stationID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &stationClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if claims.Role != domain.RoleSuperadmin && claims.StationID == "" {
		return domain.Actor{}, errors.New("token has no station")
	}
	return domain.Actor{Username: sub, Role: claims.Role, StationID: claims.StationID}, nil
}

func (a *AuthManager) sign(username, role, stationID string, expiresAt time.Time) (string, error) {
	claims := stationClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "fuelstation",
		},
		Role:      role,
		StationID: stationID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// CreateUser adds a station account. Superadmins may create owners and
// employees for any station; owners only employees for their own.
func (a *AuthManager) CreateUser(ctx context.Context, actor domain.Actor, req domain.UserCreateRequest) (domain.StationUser, error) {
	a.bootstrapUsers(ctx)

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.StationUser{}, fmt.Errorf("%w: username must be at least 4 characters", store.ErrValidation)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.StationUser{}, fmt.Errorf("%w: username must not contain spaces", store.ErrValidation)
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.StationUser{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrValidation)
	}
	if req.Role != domain.RoleOwner && req.Role != domain.RoleEmployee {
		return domain.StationUser{}, fmt.Errorf("%w: role must be owner or employee", store.ErrValidation)
	}

	stationID := strings.TrimSpace(req.StationID)
	switch actor.Role {
	case domain.RoleSuperadmin:
		if stationID == "" {
			return domain.StationUser{}, fmt.Errorf("%w: station_id is required", store.ErrValidation)
		}
		if a.userStore != nil {
			if _, err := a.userStore.GetStation(ctx, stationID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.StationUser{}, fmt.Errorf("%w: unknown station %s", store.ErrValidation, stationID)
				}
				return domain.StationUser{}, fmt.Errorf("look up station: %w", err)
			}
		}
	case domain.RoleOwner:
		if req.Role != domain.RoleEmployee {
			return domain.StationUser{}, store.ErrForbidden
		}
		if stationID == "" {
			stationID = actor.StationID
		}
		if stationID != actor.StationID {
			return domain.StationUser{}, store.ErrForbidden
		}
	default:
		return domain.StationUser{}, store.ErrForbidden
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return domain.StationUser{}, fmt.Errorf("%w: username already exists", store.ErrConflict)
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.StationUser{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	if a.userStore != nil {
		err := a.userStore.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  passwordHash,
			Role:      req.Role,
			StationID: stationID,
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return domain.StationUser{}, err
		}
	}

	a.mu.Lock()
	a.users[username] = credential{
		password:  passwordHash,
		role:      req.Role,
		stationID: stationID,
		active:    true,
		created:   now,
	}
	a.mu.Unlock()

	a.logger.Info("user created",
		zap.String("username", username),
		zap.String("role", req.Role),
		zap.String("station_id", stationID),
		zap.String("created_by", actor.Username),
	)
	return domain.StationUser{
		Username:  username,
		Role:      req.Role,
		StationID: stationID,
		Active:    true,
		CreatedAt: now,
	}, nil
}

// ListUsers returns the accounts visible to actor: every account for a
// superadmin, the own station's accounts for an owner.
func (a *AuthManager) ListUsers(ctx context.Context, actor domain.Actor) ([]domain.StationUser, error) {
	if actor.Role != domain.RoleSuperadmin && actor.Role != domain.RoleOwner {
		return nil, store.ErrForbidden
	}
	a.bootstrapUsers(ctx)

	a.mu.RLock()
	result := make([]domain.StationUser, 0, len(a.users))
	for username, user := range a.users {
		if actor.Role == domain.RoleOwner && user.stationID != actor.StationID {
			continue
		}
		result = append(result, domain.StationUser{
			Username:  username,
			Role:      user.role,
			StationID: user.stationID,
			Active:    user.active,
			CreatedAt: user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result, nil
}

// bootstrapUsers loads accounts from the user store into the in-memory
// credential cache and upgrades legacy plain-text passwords to bcrypt.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		a.logger.Warn("failed to load users", zap.Error(err))
		return
	}
	if len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				if err := a.userStore.UpdateUserPassword(ctx, username, hashed); err != nil {
					a.logger.Warn("failed to upgrade password hash", zap.String("username", username), zap.Error(err))
				}
			}
		}
		a.users[username] = credential{
			password:  password,
			role:      user.Role,
			stationID: user.StationID,
			active:    user.Active,
			created:   user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
