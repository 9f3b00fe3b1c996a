// Package token выпускает и проверяет bearer-токены оркестратора (JWT, HS256).
package token

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidCredentials — неверные логин или пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — подпись не сходится, токен просрочен или повреждён.
	ErrInvalidToken = errors.New("invalid token")
)

const issuer = "playroom-orchestrator"

// Config — параметры Issuer.
type Config struct {
	Secret   []byte
	TTL      time.Duration
	Username string
	Password string
	Clock    func() time.Time
}

// Issuer выпускает токены для единственной пары учётных данных.
type Issuer struct {
	secret   []byte
	ttl      time.Duration
	username string
	password string
	now      func() time.Time
}

// NewIssuer создаёт Issuer. Пустой секрет — ошибка.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Issuer{
		secret:   cfg.Secret,
		ttl:      cfg.TTL,
		username: cfg.Username,
		password: cfg.Password,
		now:      cfg.Clock,
	}, nil
}

// Token — выпущенный токен.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Issue проверяет учётные данные и выпускает токен.
func (i *Issuer) Issue(username, password string) (*Token, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(i.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(i.password)) == 1
	if !userOK || !passOK {
		return nil, ErrInvalidCredentials
	}

	now := i.now()
	exp := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Verify проверяет подпись и срок действия. Возвращает subject.
func (i *Issuer) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}
