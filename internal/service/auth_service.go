package service

import (
	"alcyxob/fitmate/internal/domain"
	"alcyxob/fitmate/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// Field limits of the user schema.
const (
	maxNameLength     = 50
	maxNicknameLength = 12
	maxPhoneLength    = 12
	minPasswordLength = 5
)

// SignupInput holds the fields accepted at registration.
type SignupInput struct {
	Username    string
	Password    string
	Nickname    string
	Name        string
	PhoneNumber string
	Birthdate   *time.Time
}

type AuthService interface {
	Signup(ctx context.Context, input SignupInput) (token string, user *domain.User, err error)
	Login(ctx context.Context, username, password string) (token string, user *domain.User, err error)
	VerifyCredential(ctx context.Context, username, password string) (bool, error)
}

// authService implements the AuthService interface.
type authService struct {
	userRepo      repository.UserRepository
	jwtSecret     string
	jwtExpiration time.Duration
}

// NewAuthService creates a new instance of authService.
func NewAuthService(userRepo repository.UserRepository, jwtSecret string, jwtExpiration time.Duration) AuthService {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty")
	}
	if jwtExpiration <= 0 {
		jwtExpiration = time.Hour
	}
	return &authService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (in *SignupInput) normalize() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Nickname = strings.TrimSpace(in.Nickname)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	switch {
	case in.Username == "":
		return validationError("username is required")
	case utf8.RuneCountInString(in.Password) < minPasswordLength:
		return validationError("password must be at least %d characters", minPasswordLength)
	case in.Nickname == "":
		return validationError("nickname is required")
	case utf8.RuneCountInString(in.Nickname) > maxNicknameLength:
		return validationError("nickname must be at most %d characters", maxNicknameLength)
	case in.PhoneNumber == "":
		return validationError("phoneNumber is required")
	case len(in.PhoneNumber) > maxPhoneLength:
		return validationError("phoneNumber must be at most %d characters", maxPhoneLength)
	case utf8.RuneCountInString(in.Name) > maxNameLength:
		return validationError("name must be at most %d characters", maxNameLength)
	}
	return nil
}

// Signup creates the account and logs it in.
func (s *authService) Signup(ctx context.Context, input SignupInput) (string, *domain.User, error) {
	if err := input.normalize(); err != nil {
		return "", nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, ErrHashingFailed
	}

	user := &domain.User{
		Username:     input.Username,
		Nickname:     input.Nickname,
		Name:         input.Name,
		PasswordHash: string(hashedPassword),
		PhoneNumber:  input.PhoneNumber,
		Birthdate:    input.Birthdate,
		Role:         domain.RoleMember,
	}

	// The unique indexes are the only uniqueness check; a pre-read would race.
	if _, err := s.userRepo.Create(ctx, user); err != nil {
		var dup *repository.DuplicateKeyError
		if errors.As(err, &dup) {
			return "", nil, &FieldConflictError{Field: dup.Field}
		}
		return "", nil, err
	}

	token, err := s.generateJWT(user)
	if err != nil {
		return "", nil, ErrTokenGeneration
	}
	user.PasswordHash = ""
	return token, user, nil
}

// Login handles user authentication and JWT generation.
func (s *authService) Login(ctx context.Context, username, password string) (token string, user *domain.User, err error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		err = validationError("username and password cannot be empty")
		return
	}

	user, err = s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = ErrAuthenticationFailed
		}
		return "", nil, err
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrAuthenticationFailed
	}

	token, err = s.generateJWT(user)
	if err != nil {
		return "", nil, ErrTokenGeneration
	}

	user.PasswordHash = ""
	return token, user, nil
}

// VerifyCredential reports whether password matches the stored hash for username.
func (s *authService) VerifyCredential(ctx context.Context, username, password string) (bool, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil, nil
}

// --- JWT Helper ---

// Claims is the JWT payload issued at login and signup.
type Claims struct {
	UserID string      `json:"uid"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// generateJWT creates a new JWT token for the given user.
func (s *authService) generateJWT(user *domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID.Hex(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "fitmate",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ParseToken validates a signed token and returns its claims.
// Expired tokens yield an error wrapping jwt.ErrTokenExpired.
func ParseToken(jwtSecret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" || claims.ExpiresAt == nil {
		return nil, errors.New("invalid token or missing claims")
	}
	return claims, nil
}
