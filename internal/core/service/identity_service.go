package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/port"
)

const (
	tokenIssuer    = "duka"
	codeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	shopCodeLength = 6
	codeAttempts   = 5
)

var (
	errIncompleteForm = &domain.ValidationError{Msg: "Fill all fields correctly."}
	errWeakPassword   = &domain.ValidationError{Msg: "Password must be at least 6 characters."}
)

type IdentityConfig struct {
	Secret     []byte
	TokenTTL   time.Duration
	BcryptCost int
}

type RegisterShopRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	OwnerName    string `json:"owner_name"`
	ShopName     string `json:"shop_name"`
	MobileNumber string `json:"mobile_number"`
}

type Token struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	Role      domain.Role `json:"role"`
	ShopID    string      `json:"shop_id"`
	Name      string      `json:"name"`
}

type claims struct {
	ShopID string      `json:"shop_id"`
	Role   domain.Role `json:"role"`
	Name   string      `json:"name"`
	jwt.StandardClaims
}

// IdentityService signs owners and staff in and turns bearer tokens back
// into sessions.
type IdentityService struct {
	repo  port.Repository
	cache port.CacheRepository
	cfg   IdentityConfig
	opts  Options
}

func NewIdentityService(repo port.Repository, cache port.CacheRepository, cfg IdentityConfig, opts Options) *IdentityService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &IdentityService{repo: repo, cache: cache, cfg: cfg, opts: opts.withDefaults()}
}

// RegisterShop creates an owner account and its shop with a fresh shop code.
func (s *IdentityService) RegisterShop(ctx context.Context, req RegisterShopRequest) (*domain.Shop, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ownerName := strings.TrimSpace(req.OwnerName)
	shopName := strings.TrimSpace(req.ShopName)
	if !strings.Contains(email, "@") || ownerName == "" || shopName == "" {
		return nil, errIncompleteForm
	}
	if len(req.Password) < 6 {
		return nil, errWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	cctx, cancel := s.opts.call(ctx)
	defer cancel()

	_, err = s.repo.GetOwnerByEmail(cctx, email)
	var notFound *domain.NotFoundError
	switch {
	case err == nil:
		return nil, &domain.ConflictError{Entity: "owner", ID: email}
	case !errors.As(err, &notFound):
		return nil, domain.Backend(domain.MsgSignInFailed, err)
	}

	now := s.opts.Now()
	owner := domain.Owner{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         ownerName,
		CreatedAt:    now,
	}
	shop := domain.Shop{
		ID:           uuid.NewString(),
		OwnerID:      owner.ID,
		Name:         shopName,
		MobileNumber: strings.TrimSpace(req.MobileNumber),
		CreatedAt:    now,
	}

	// retry with a new code on collision
	for i := 0; i < codeAttempts; i++ {
		shop.Code = randomCode(shopCodeLength)
		err = s.repo.CreateShop(cctx, owner, shop)
		if !errors.Is(err, port.ErrDuplicateKey) {
			break
		}
	}
	if errors.Is(err, port.ErrDuplicateKey) {
		return nil, &domain.ConflictError{Entity: "shop", ID: email}
	}
	if err != nil {
		return nil, domain.Backend(domain.MsgSignInFailed, err)
	}

	s.opts.Logger.Info("shop registered", zap.String("shop_id", shop.ID), zap.String("owner_id", owner.ID))
	return &shop, nil
}

func (s *IdentityService) SignInOwner(ctx context.Context, email, password string) (*Token, error) {
	cctx, cancel := s.opts.call(ctx)
	defer cancel()

	owner, err := s.repo.GetOwnerByEmail(cctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, credentialsError(err, domain.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(owner.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	shop, err := s.repo.GetShopByOwner(cctx, owner.ID)
	if err != nil {
		return nil, credentialsError(err, domain.ErrInvalidCredentials)
	}

	s.opts.Logger.Info("owner signed in", zap.String("shop_id", shop.ID), zap.String("owner_id", owner.ID))
	return s.issue(owner.ID, owner.Name, shop.ID, domain.RoleOwner)
}

// SignInStaff checks the shop code, the staff id within that shop and the
// active flag, in that order.
func (s *IdentityService) SignInStaff(ctx context.Context, shopCode, staffID string) (*Token, error) {
	cctx, cancel := s.opts.call(ctx)
	defer cancel()

	shop, err := s.repo.GetShopByCode(cctx, strings.ToUpper(strings.TrimSpace(shopCode)))
	if err != nil {
		return nil, credentialsError(err, domain.ErrInvalidShopCode)
	}
	staff, err := s.repo.GetStaff(cctx, shop.ID, strings.TrimSpace(staffID))
	if err != nil {
		return nil, credentialsError(err, domain.ErrInvalidStaffID)
	}
	if !staff.ActiveStatus {
		return nil, domain.ErrStaffInactive
	}

	if err := s.repo.TouchLastLogin(cctx, shop.ID, staff.ID, s.opts.Now()); err != nil {
		s.opts.Logger.Warn("update last login failed", zap.String("staff_id", staff.ID), zap.Error(err))
	}

	s.opts.Logger.Info("staff signed in", zap.String("shop_id", shop.ID), zap.String("staff_id", staff.ID))
	return s.issue(staff.ID, staff.Name, shop.ID, domain.RoleStaff)
}

// SignOut revokes the session's token until it would have expired anyway.
func (s *IdentityService) SignOut(ctx context.Context, sess domain.Session) error {
	if s.cache == nil {
		return nil
	}
	cctx, cancel := s.opts.call(ctx)
	defer cancel()

	if err := s.cache.RevokeToken(cctx, sess.TokenID, sess.ExpiresAt.Sub(s.opts.Now())); err != nil {
		return domain.Backend(domain.MsgSignInFailed, err)
	}
	return nil
}

// Resolve validates a bearer token and returns the session it carries.
func (s *IdentityService) Resolve(ctx context.Context, token string) (domain.Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.cfg.Secret, nil
	})
	if err != nil {
		return domain.Session{}, domain.ErrInvalidToken
	}
	if c.Role != domain.RoleOwner && c.Role != domain.RoleStaff {
		return domain.Session{}, domain.ErrInvalidToken
	}

	if s.cache != nil {
		cctx, cancel := s.opts.call(ctx)
		defer cancel()
		revoked, err := s.cache.IsTokenRevoked(cctx, c.Id)
		if err != nil {
			return domain.Session{}, domain.Backend(domain.MsgSignInFailed, err)
		}
		if revoked {
			return domain.Session{}, domain.ErrInvalidToken
		}
	}

	return domain.Session{
		ActorID:   c.Subject,
		ActorName: c.Name,
		ShopID:    c.ShopID,
		Role:      c.Role,
		TokenID:   c.Id,
		ExpiresAt: time.Unix(c.ExpiresAt, 0),
	}, nil
}

func (s *IdentityService) issue(actorID, name, shopID string, role domain.Role) (*Token, error) {
	now := s.opts.Now()
	expires := now.Add(s.cfg.TokenTTL)
	c := claims{
		ShopID: shopID,
		Role:   role,
		Name:   name,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   actorID,
			Issuer:    tokenIssuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: expires.Unix(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{Token: signed, ExpiresAt: expires, Role: role, ShopID: shopID, Name: name}, nil
}

// credentialsError maps a missing record to the sign-in message the user
// sees and keeps real backend failures distinguishable.
func credentialsError(err error, miss error) error {
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return miss
	}
	return domain.Backend(domain.MsgSignInFailed, err)
}

func randomCode(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
