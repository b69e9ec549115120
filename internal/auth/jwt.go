package auth

import (
	"errors"
	"time"

	"vigil/internal/support"

	"github.com/golang-jwt/jwt/v5"
)

const tokenLifetime = 24 * time.Hour

func jwtSecret() []byte {
	return []byte(support.GetEnv("JWT_SECRET", "change-me-in-production"))
}

func GenerateJWT(operatorID uint, role string) (string, error) {
	claims := jwt.MapClaims{
		"operator_id": operatorID,
		"role":        role,
		"exp":         time.Now().Add(tokenLifetime).Unix(),
		"iat":         time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret())
}

func ValidateJWT(tokenString string) (map[string]interface{}, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret(), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
