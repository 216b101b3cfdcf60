// Package token はセレモニーの相関状態をクライアント往復用の
// 改ざん検知付きトークンとして発行・検証する。
// サーバー側にセッションを残さないため、水平スケールしても
// init と verify が別プロセスに届いてよい。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/golang-jwt/jwt/v5"
)

// Kind はセレモニーの種別。
type Kind string

const (
	KindRegistration   Kind = "registration"
	KindAuthentication Kind = "authentication"
)

var (
	// ErrInvalid は署名不正・形式不正のトークン。
	ErrInvalid = errors.New("token: invalid ceremony token")
	// ErrExpired は有効期限切れのトークン。
	ErrExpired = errors.New("token: ceremony token expired")
	// ErrWrongKind は別セレモニーのトークン。
	ErrWrongKind = errors.New("token: ceremony kind mismatch")
	// ErrUsed は消費済みトークンの再提示。
	ErrUsed = errors.New("token: ceremony token already used")
)

// Profile は登録セレモニーの間だけ持ち回るプロフィール項目。
type Profile struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob"`
}

// Claims はトークンに封入するセレモニー状態。
// webauthn.SessionData を丸ごと持ち回ることで、verify 側は
// init 時とまったく同じ期待値（チャレンジ・許可リスト・UV 要件）で
// 検証エンジンを呼べる。
type Claims struct {
	jwt.RegisteredClaims
	Kind    Kind                 `json:"kind"`
	Profile Profile              `json:"profile,omitempty"`
	Session webauthn.SessionData `json:"session"`
}

// Registry は消費済みトークンの台帳。ワンタイム性の強制に使う。
// Consume は初回だけ true を返し、同じ ID の2回目以降は false を返す。
// 実装は原子的でなければならない（同時再提示の一方だけが成功する）。
type Registry interface {
	Consume(id string, expiresAt time.Time) bool
}

// Issuer はセレモニートークンを HS256 JWT として発行・検証する。
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer は Issuer を生成する。now が nil なら time.Now を使う。
func NewIssuer(secret []byte, ttl time.Duration, now func() time.Time) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token: secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token: ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: secret, ttl: ttl, now: now}, nil
}

// TTL はトークンの有効期間を返す。Cookie の MaxAge に合わせる用。
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue はセレモニー状態を署名付きトークンへ封入する。
func (i *Issuer) Issue(kind Kind, userID string, profile Profile, session webauthn.SessionData) (string, error) {
	id, err := newTokenID()
	if err != nil {
		return "", fmt.Errorf("token: generate id: %w", err)
	}
	now := i.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Kind:    kind,
		Profile: profile,
		Session: session,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証して封入済みのセレモニー状態を取り出す。
// 署名・有効期限・セレモニー種別のいずれかが合わなければエラーを返す。
// ワンタイム性はここでは強制しない（Registry.Consume が担当）。
func (i *Issuer) Parse(raw string, kind Kind) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}
	if claims.ID == "" || claims.ExpiresAt == nil || claims.Session.Challenge == "" {
		return Claims{}, ErrInvalid
	}
	if claims.Kind != kind {
		return Claims{}, ErrWrongKind
	}
	return claims, nil
}

func newTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
