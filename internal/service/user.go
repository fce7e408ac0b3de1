package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ecocycle/rvm-loyalty/internal/model"
	"github.com/ecocycle/rvm-loyalty/internal/repo"
)

// RegisterInput is a validated signup request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Summary is a user's lifetime recycling stats, recomputed from the
// activity history on every call.
type Summary struct {
	TotalRecycledWeight decimal.Decimal `json:"total_recycled_weight"`
	TotalPointsEarned   decimal.Decimal `json:"total_points_earned"`
	DepositsCount       int64           `json:"deposits_count"`
	MemberSince         string          `json:"member_since"`
	CurrentPoints       decimal.Decimal `json:"current_points"`
	CurrentCredit       decimal.Decimal `json:"current_credit"`
}

// UserService covers registration, login and the summary aggregator.
type UserService struct {
	repo   repo.RepositoryInterface
	ledger *LedgerService
	log    *zap.SugaredLogger
}

// NewUserService returns UserService.
func NewUserService(r repo.RepositoryInterface, ledger *LedgerService, logger *zap.SugaredLogger) *UserService {
	return &UserService{repo: r, ledger: ledger, log: logger}
}

// Register creates a user with a bcrypt password hash.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if _, err := s.repo.UserByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Role:         model.RoleUser,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and returns the user. Missing users and bad
// passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns one user by id.
func (s *UserService) Get(ctx context.Context, id uint64) (*model.User, error) {
	return s.repo.UserByID(ctx, id)
}

// UpdateProfile edits the caller's name and phone.
func (s *UserService) UpdateProfile(ctx context.Context, id uint64, firstName, lastName, phone string) (*model.User, error) {
	u, err := s.repo.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if firstName != "" {
		u.FirstName = firstName
	}
	if lastName != "" {
		u.LastName = lastName
	}
	if phone != "" {
		u.Phone = phone
	}
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Summarize folds the user's full deposit history into lifetime totals
// and attaches the current wallet balances.
func (s *UserService) Summarize(ctx context.Context, userID uint64) (*Summary, error) {
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.UserSummaryTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	w, err := s.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		TotalRecycledWeight: totals.Weight,
		TotalPointsEarned:   totals.Points,
		DepositsCount:       totals.Count,
		MemberSince:         u.CreatedAt.Format("2006-01-02"),
		CurrentPoints:       w.Points,
		CurrentCredit:       w.Credit,
	}, nil
}

// List returns all users (admin).
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

// SetRole changes a user's role (admin).
func (s *UserService) SetRole(ctx context.Context, id uint64, role string) (*model.User, error) {
	switch role {
	case model.RoleUser, model.RoleAdmin, model.RoleTechnician:
	default:
		return nil, errors.New("unknown role")
	}
	u, err := s.repo.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Role = role
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes a user (admin).
func (s *UserService) Delete(ctx context.Context, id uint64) error {
	if _, err := s.repo.UserByID(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteUser(ctx, id)
}
