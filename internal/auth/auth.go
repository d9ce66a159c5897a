package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrLoginDisabled      = errors.New("operator login is not configured")
)

// Claims represents the JWT claims for an authenticated operator
type Claims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Service issues and checks operator tokens. There is a single operator
// account whose bcrypt hash comes from the configuration.
type Service struct {
	jwtSecret     []byte
	tokenDuration time.Duration
	adminUser     string
	adminHash     string
}

// NewService creates a new auth service. An empty secret is replaced by a
// random one, which invalidates tokens on restart.
func NewService(jwtSecret string, tokenDuration time.Duration, adminUser, adminHash string) *Service {
	if tokenDuration == 0 {
		tokenDuration = 24 * time.Hour
	}
	if jwtSecret == "" {
		jwtSecret = randomSecret()
	}
	return &Service{
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: tokenDuration,
		adminUser:     adminUser,
		adminHash:     adminHash,
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// LoginEnabled reports whether an operator password hash is configured
func (s *Service) LoginEnabled() bool {
	return s.adminHash != ""
}

// HashPassword creates a bcrypt hash of a password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword compares a password against a hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Login checks operator credentials and returns a signed token
func (s *Service) Login(username, password string) (string, error) {
	if !s.LoginEnabled() {
		return "", ErrLoginDisabled
	}
	// Always run bcrypt so a wrong username costs the same as a wrong password
	ok := CheckPassword(password, s.adminHash)
	if !ok || username != s.adminUser {
		return "", ErrInvalidCredentials
	}
	return s.GenerateToken(username, true)
}

// GenerateToken creates a JWT for an authenticated operator
func (s *Service) GenerateToken(username string, isAdmin bool) (string, error) {
	claims := Claims{
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
