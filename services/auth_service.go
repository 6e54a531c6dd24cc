//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"charity-chat/auth"
	"charity-chat/domain"
	"charity-chat/errors"
	"charity-chat/infrastructure/storage"
	"fmt"
	"log/slog"
)

type IAuthService interface {
	RegisterUser(req auth.RegisterUserRequest) (Token, domain.Profile, error)
	RegisterCharity(req auth.RegisterCharityRequest) (Token, domain.Profile, error)
	Login(req auth.LoginRequest) (Token, domain.Profile, error)
	Profile(identity auth.Identity) (domain.Profile, error)
}

type AuthService struct {
	accountRepository storage.IAccountRepository
	tokenIssuer       *auth.TokenIssuer
	log               *slog.Logger
}

type Token string

func NewAuthService(repo storage.IAccountRepository, tokenIssuer *auth.TokenIssuer, log *slog.Logger) *AuthService {
	return &AuthService{accountRepository: repo, tokenIssuer: tokenIssuer, log: log}
}

func (s *AuthService) RegisterUser(req auth.RegisterUserRequest) (Token, domain.Profile, error) {
	// Business rules are checked before any expensive cryptographic operation
	if err := auth.ValidateRegisterUser(req); err != nil {
		return "", domain.Profile{}, err
	}
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return "", domain.Profile{}, fmt.Errorf("hashing failed: %w", err)
	}
	user, err := s.accountRepository.CreateUser(domain.User{
		Nombre:       req.Nombre,
		Apellido:     req.Apellido,
		Email:        req.Email,
		PasswordHash: hashedPassword,
	})
	if err != nil {
		return "", domain.Profile{}, err
	}
	return s.issue(domain.Profile{User: &user})
}

func (s *AuthService) RegisterCharity(req auth.RegisterCharityRequest) (Token, domain.Profile, error) {
	if err := auth.ValidateRegisterCharity(req); err != nil {
		return "", domain.Profile{}, err
	}
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return "", domain.Profile{}, fmt.Errorf("hashing failed: %w", err)
	}
	charity, err := s.accountRepository.CreateCharity(domain.Charity{
		Nombre:       req.Nombre,
		Email:        req.Email,
		Direccion:    req.Direccion,
		Telefono:     req.Telefono,
		Descripcion:  req.Descripcion,
		PasswordHash: hashedPassword,
	})
	if err != nil {
		return "", domain.Profile{}, err
	}
	return s.issue(domain.Profile{Charity: &charity})
}

func (s *AuthService) Login(req auth.LoginRequest) (Token, domain.Profile, error) {
	if err := auth.Validate(req); err != nil {
		return "", domain.Profile{}, errors.ErrInvalidCredentials
	}
	profile, err := s.accountRepository.GetByEmail(req.Email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		s.log.Debug("Login failed", "error", err)
		return "", domain.Profile{}, errors.ErrInvalidCredentials
	}
	match, err := auth.ComparePassword(req.Password, profile.PasswordHash())
	if err != nil || !match {
		return "", domain.Profile{}, errors.ErrInvalidCredentials
	}
	return s.issue(profile)
}

// Profile resolves the account behind an authenticated identity.
// A valid token whose account vanished is treated as unauthenticated.
func (s *AuthService) Profile(identity auth.Identity) (domain.Profile, error) {
	profile, err := s.accountRepository.GetByID(identity.ID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %v", errors.ErrAuthRequired, err)
	}
	if profile.Kind() != identity.Kind {
		return domain.Profile{}, fmt.Errorf("%w: token kind mismatch", errors.ErrAuthRequired)
	}
	return profile, nil
}

func (s *AuthService) issue(profile domain.Profile) (Token, domain.Profile, error) {
	token, err := s.tokenIssuer.GenerateToken(profile.ID(), profile.Kind())
	if err != nil {
		return "", domain.Profile{}, err
	}
	return Token(token), profile, nil
}
