package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"relaygate/tools/errs"
)

// Verify validates an HMAC-signed bearer token against the shared secret
// and returns the subject user id. Stateless; safe for concurrent use.
//
// Each failure maps to a distinct kind: errs.ErrTokenExpired,
// errs.ErrTokenSignature, errs.ErrTokenMalformed, errs.ErrTokenNoSubject.
func Verify(secret []byte, token string) (int64, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil {
		switch {
		case errors.Is(err, jwtlib.ErrTokenExpired):
			return 0, errs.ErrTokenExpired
		case errors.Is(err, jwtlib.ErrTokenSignatureInvalid):
			return 0, errs.ErrTokenSignature
		default:
			return 0, errs.ErrTokenMalformed.WithDetail(err.Error())
		}
	}
	if !parsed.Valid {
		return 0, errs.ErrTokenSignature
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return 0, errs.ErrTokenNoSubject
	}
	return subjectID(claims)
}

// The backend issues "sub" either as a string or as a bare number; accept
// both.
func subjectID(claims jwtlib.MapClaims) (int64, error) {
	v, ok := claims["sub"]
	if !ok {
		return 0, errs.ErrTokenNoSubject
	}
	switch s := v.(type) {
	case string:
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return 0, errs.ErrTokenNoSubject.WithDetail("sub not a user id")
		}
		return id, nil
	case float64:
		id := int64(s)
		if id <= 0 {
			return 0, errs.ErrTokenNoSubject.WithDetail("sub not a user id")
		}
		return id, nil
	default:
		return 0, errs.ErrTokenNoSubject
	}
}

// Generate signs a token for userID. Used by local tooling and tests; the
// production issuer is the backend service.
func Generate(secret []byte, userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtlib.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return tok.SignedString(secret)
}
