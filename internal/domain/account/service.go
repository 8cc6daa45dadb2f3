package account

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/notification"
)

type Service struct {
	repo     Repository
	notifier notification.Notifier
	log      zerolog.Logger
	cost     int
}

func NewService(repo Repository, notifier notification.Notifier, log zerolog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, log: log, cost: bcrypt.DefaultCost}
}

// Signup creates an account with a bcrypt-hashed password. Duplicate
// usernames or emails are reported as conflicts by the store.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Account, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	a := &Account{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		MobileNo:     req.MobileNo,
		Address:      req.Address,
		Role:         req.Role,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.log.Info().Str("account_id", a.ID.String()).Str("role", a.Role).Msg("account created")
	s.notify(ctx, notification.EventAccountCreated, map[string]string{
		"username": a.Username,
		"role":     a.Role,
	})
	return a, nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListAccounts(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// UpdateProfile applies the fields present in req.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Account, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		a.Email = *req.Email
	}
	if req.MobileNo != nil {
		a.MobileNo = strings.TrimSpace(*req.MobileNo)
	}
	if req.Address != nil {
		a.Address = strings.TrimSpace(*req.Address)
	}
	if req.Role != nil {
		a.Role = strings.TrimSpace(*req.Role)
	}
	if req.Password != nil {
		hash, err := s.hash(*req.Password)
		if err != nil {
			return nil, err
		}
		a.PasswordHash = hash
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CheckPassword verifies a username and password pair. Unknown usernames and
// wrong passwords produce the same error.
func (s *Service) CheckPassword(ctx context.Context, username, password string) (*Account, error) {
	a, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return nil, apperr.Validationf("account", "invalid username or password")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Validationf("account", "invalid username or password")
	}
	return a, nil
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", apperr.Validationf("account", "password: %v", err)
	}
	return string(b), nil
}

func (s *Service) notify(ctx context.Context, event notification.Event, data map[string]string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, event, data); err != nil {
		s.log.Warn().Err(err).Str("event", string(event)).Msg("notification not delivered")
	}
}
