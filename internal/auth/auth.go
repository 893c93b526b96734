package auth

import (
	"fmt"
	"log"
	"net/http"

	"github.com/AS-Aurora/FullStackSocial/internal/database"
	"github.com/golang-jwt/jwt"
)

const (
	tokenCookieKey  = "jwt-auth"
	tokenQueryParam = "token"
	userIdClaim     = "user_id"
)

// Identity is the resolved caller of a connection. The zero value is
// anonymous. An Identity is immutable for the lifetime of its session.
type Identity struct {
	UserId         string
	Username       string
	ProfilePicture *string
}

var Anonymous = Identity{}

func (i Identity) IsAnonymous() bool {
	return i.UserId == ""
}

// TokenVerifier validates a bearer token and returns the subject id it
// carries.
type TokenVerifier interface {
	Verify(tokenString string) (string, error)
}

type JWTVerifier struct {
	signingKey []byte
}

func NewJWTVerifier(signingKey []byte) *JWTVerifier {
	return &JWTVerifier{signingKey: signingKey}
}

func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	subject, ok := claims[userIdClaim].(string)
	if !ok || subject == "" {
		return "", fmt.Errorf("missing %s claim", userIdClaim)
	}

	return subject, nil
}

// Resolver turns handshake data into an Identity. Resolution happens once,
// at connection-accept time, and never fails the caller: any missing or
// invalid token yields Anonymous.
type Resolver struct {
	tokens TokenVerifier
	db     database.SocialRepository
	log    *log.Logger
}

func NewResolver(logger *log.Logger, tokens TokenVerifier, db database.SocialRepository) *Resolver {
	return &Resolver{
		tokens: tokens,
		db:     db,
		log:    logger,
	}
}

// Resolve looks for a bearer token in the auth cookie, falling back to the
// query string, and resolves its subject to an account.
func (r *Resolver) Resolve(req *http.Request) Identity {
	tokenString := tokenFromRequest(req)
	if tokenString == "" {
		return Anonymous
	}

	subject, err := r.tokens.Verify(tokenString)
	if err != nil {
		r.log.Printf("verify token: %v", err)
		return Anonymous
	}

	user, err := r.db.GetAccountById(subject)
	if err != nil {
		r.log.Printf("resolve subject %q: %v", subject, err)
		return Anonymous
	}

	return Identity{
		UserId:         user.Id,
		Username:       user.Username,
		ProfilePicture: user.ProfilePicture,
	}
}

func tokenFromRequest(req *http.Request) string {
	if cookie, err := req.Cookie(tokenCookieKey); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return req.URL.Query().Get(tokenQueryParam)
}
