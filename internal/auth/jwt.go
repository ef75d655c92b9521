package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Realm identifies who a token was issued to.
type Realm string

const (
	// RealmService is a presentation client (chat bot, web front) acting for players.
	RealmService Realm = "service"
	// RealmAdmin is a human operator; its tokens carry a role.
	RealmAdmin Realm = "admin"
)

const (
	issuer = "tower"
	leeway = 5 * time.Second
)

var (
	ErrWrongRealm = errors.New("token realm not accepted here")
	ErrBadRole    = errors.New("token role invalid for realm")
)

// Claims are the registered claims plus realm and admin role.
type Claims struct {
	jwt.RegisteredClaims
	Realm Realm  `json:"realm"`
	Role  string `json:"role,omitempty"`
}

// JWTManager signs and verifies HS256 tokens for both realms.
type JWTManager struct {
	secret []byte
	expiry map[Realm]time.Duration
	parser *jwt.Parser
}

func NewJWTManager(secret string, serviceExpiry, adminExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: map[Realm]time.Duration{
			RealmService: serviceExpiry,
			RealmAdmin:   adminExpiry,
		},
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}
}

// GenerateToken signs a token for subject. Subjects name clients such as
// "discord-bot", never player ids. role must be empty for the service realm
// and a known admin role for the admin realm.
func (m *JWTManager) GenerateToken(realm Realm, subject, role string) (string, error) {
	ttl, ok := m.expiry[realm]
	if !ok {
		return "", fmt.Errorf("unknown realm %q", realm)
	}
	if subject == "" {
		return "", errors.New("empty subject")
	}
	if err := checkRole(realm, role); err != nil {
		return "", err
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Realm: realm,
		Role:  role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken verifies signature, issuer and expiry, then the realm/role pairing.
func (m *JWTManager) ValidateToken(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, err := m.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if _, ok := m.expiry[claims.Realm]; !ok {
		return nil, fmt.Errorf("unknown realm %q", claims.Realm)
	}
	if err := checkRole(claims.Realm, claims.Role); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateTokenForRealm is ValidateToken restricted to the given realms.
func (m *JWTManager) ValidateTokenForRealm(raw string, accepted ...Realm) (*Claims, error) {
	claims, err := m.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	for _, realm := range accepted {
		if claims.Realm == realm {
			return claims, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWrongRealm, claims.Realm)
}

func checkRole(realm Realm, role string) error {
	switch {
	case realm == RealmService && role != "":
		return fmt.Errorf("%w: service tokens carry no role", ErrBadRole)
	case realm == RealmAdmin && !ValidRole(role):
		return fmt.Errorf("%w: %q", ErrBadRole, role)
	}
	return nil
}
