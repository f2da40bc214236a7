package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
)

const (
	ibanCountry    = "NL"
	ibanBankCode   = "GREY"
	minPasswordLen = 8
	// ibanAttempts bounds how often registration redraws a colliding IBAN.
	ibanAttempts = 3
)

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type accountRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error
}

type userRepo interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, tx *sql.Tx, u *domain.User) error
}

type AccountService struct {
	db       txRunner
	accounts accountRepo
	users    userRepo
}

func NewAccountService(db txRunner, accounts accountRepo, users userRepo) *AccountService {
	return &AccountService{db: db, accounts: accounts, users: users}
}

type RegisterRequest struct {
	Email    string
	Name     string
	Password string
}

// Register creates a client user together with an empty account under a
// freshly issued IBAN.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*domain.User, *domain.Account, error) {
	log := logging.FromContext(ctx)

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRegistration(req); err != nil {
		return nil, nil, fmt.Errorf("Register: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("Register: hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         domain.UserRoleClient,
		CreatedAt:    now,
	}

	var account *domain.Account
	for attempt := 1; ; attempt++ {
		iban, err := generateIBAN()
		if err != nil {
			return nil, nil, fmt.Errorf("Register: %w", err)
		}
		account = &domain.Account{
			UserID:    user.ID,
			IBAN:      iban,
			Name:      req.Name,
			CreatedAt: now,
		}

		err = s.db.WithinTx(ctx, func(tx *sql.Tx) error {
			if err := s.users.Create(ctx, tx, user); err != nil {
				return err
			}
			return s.accounts.Create(ctx, tx, account)
		})
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrStoreConflict) || attempt == ibanAttempts {
			return nil, nil, fmt.Errorf("Register: %w", err)
		}
		log.Warn("iban collision, drawing another", "attempt", attempt)
	}

	log.Info("user registered",
		"user_id", user.ID,
		"iban", account.IBAN,
	)
	return user, account, nil
}

// Authenticate returns the user when the password matches. Unknown emails and
// wrong passwords both yield ErrNotFound.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("Authenticate: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("Authenticate: %w", domain.ErrNotFound)
	}
	return user, nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return account, nil
}

func validateRegistration(req RegisterRequest) error {
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return fmt.Errorf("email %q: %w", req.Email, domain.ErrInvalidRequest)
	}
	if req.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrInvalidRequest)
	}
	if len(req.Password) < minPasswordLen {
		return fmt.Errorf("password shorter than %d characters: %w", minPasswordLen, domain.ErrInvalidRequest)
	}
	return nil
}

func generateAccountNumber() (string, error) {
	digits := make([]byte, 10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generateAccountNumber: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}

func generateIBAN() (string, error) {
	acctNum, err := generateAccountNumber()
	if err != nil {
		return "", fmt.Errorf("generateIBAN: %w", err)
	}
	bban := ibanBankCode + acctNum
	return fmt.Sprintf("%s%02d%s", ibanCountry, domain.IBANCheckDigits(ibanCountry, bban), bban), nil
}
