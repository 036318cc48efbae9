// Package token 负责校验外部认证服务签发的 JSON Web Token (JWT)。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager 负责 JWT 的校验，以及在本地开发与测试中签发同构 token。
type JWTManager struct {
	secretKey      []byte        // secretKey 是认证服务项目的 HS256 密钥
	issuer         string        // issuer 非空时校验 iss
	accessTokenDur time.Duration // accessTokenDur 是本地签发 token 的有效期
}

// CustomClaims 对应认证服务 access token 中我们关心的字段。
// 用户 ID 放在标准的 sub 声明里。
type CustomClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserID 返回 sub 声明。
func (c *CustomClaims) UserID() string {
	return c.Subject
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret, issuer string, accessTokenExpireHours int) *JWTManager {
	if accessTokenExpireHours <= 0 {
		accessTokenExpireHours = 1
	}
	return &JWTManager{
		secretKey:      []byte(secret),
		issuer:         issuer,
		accessTokenDur: time.Hour * time.Duration(accessTokenExpireHours),
	}
}

// GenerateToken 签发一个与认证服务同构的 access token。
func (m *JWTManager) GenerateToken(userID, email string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串，成功时返回 CustomClaims。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
