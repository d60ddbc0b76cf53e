package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// ExtractClaimsFromJWT parses the token without signature validation and
// returns the 'sub' claim plus any realm roles. Used only by the dev-mode
// middleware where no OIDC issuer is configured.
func ExtractClaimsFromJWT(tokenString string) (string, []string, error) {
	if tokenString == "" {
		return "", nil, errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", nil, errors.New("subject claim not found in token")
	}

	var roles []string
	if realm, ok := claims["realm_access"].(map[string]interface{}); ok {
		if raw, ok := realm["roles"].([]interface{}); ok {
			for _, r := range raw {
				if role, ok := r.(string); ok {
					roles = append(roles, role)
				}
			}
		}
	}

	return sub, roles, nil
}
