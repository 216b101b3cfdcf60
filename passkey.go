package main

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"

	"github.com/dchf12/passkey/domain"
	"github.com/dchf12/passkey/token"
	"github.com/dchf12/passkey/trace"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/labstack/echo/v4"
)

const (
	regInfoCookie  = "regInfo"
	authInfoCookie = "authInfo"
)

// PasskeyHandler は WebAuthn パスキーセレモニーのハンドラー。
// init で発行したチャレンジ等の相関状態は Cookie のトークンで往復させ、
// verify はトークンを消費してから検証エンジンを呼ぶ。
type PasskeyHandler struct {
	webAuthn ceremonyVerifier
	parser   responseParser
	users    domain.UserRepository
	issuer   *token.Issuer
	consumed token.Registry
	cookies  *authCookies
	tracer   trace.Tracer
}

// NewPasskeyHandler は PasskeyHandler を生成する。
func NewPasskeyHandler(wa ceremonyVerifier, users domain.UserRepository, issuer *token.Issuer, consumed token.Registry, cookies *authCookies, tracer trace.Tracer) *PasskeyHandler {
	if tracer == nil {
		tracer = trace.Off()
	}
	return &PasskeyHandler{
		webAuthn: wa,
		parser:   protocolParser{},
		users:    users,
		issuer:   issuer,
		consumed: consumed,
		cookies:  cookies,
		tracer:   tracer,
	}
}

// InitRegister は登録セレモニーを開始する。
// 新規ユーザー ID とチャレンジを採番し、相関状態を regInfo Cookie で返す。
func (h *PasskeyHandler) InitRegister(c echo.Context) error {
	email := c.QueryParam("email")
	firstName := c.QueryParam("firstName")
	lastName := c.QueryParam("lastName")
	dob := c.QueryParam("dob")

	if email == "" || firstName == "" || lastName == "" || dob == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "all fields are required"})
	}

	ctx := c.Request().Context()
	_, err := h.users.GetByEmail(ctx, email)
	if err == nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "user already exists"})
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to look up user"})
	}

	user := domain.User{
		ID:        generateUUID(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		DOB:       dob,
	}

	options, session, err := h.webAuthn.BeginRegistration(
		user,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to begin registration: %v", err)})
	}

	tok, err := h.issuer.Issue(token.KindRegistration, user.ID, token.Profile{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		DOB:       dob,
	}, *session)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to issue ceremony token"})
	}

	h.setCeremonyCookie(c, regInfoCookie, tok)
	h.tracer.Trace("init-register: ", email)

	return c.JSON(http.StatusOK, options)
}

// VerifyRegister は登録セレモニーを完了する。
// トークンは結果にかかわらず消費し、検証が通ったときだけユーザーを作成する。
func (h *PasskeyHandler) VerifyRegister(c echo.Context) error {
	cookie, err := c.Cookie(regInfoCookie)
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "registration info not found"})
	}
	deleteCookie(c, regInfoCookie)

	claims, err := h.issuer.Parse(cookie.Value, token.KindRegistration)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": ceremonyTokenError(err)})
	}
	if !h.consumed.Consume(claims.ID, claims.ExpiresAt.Time) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": ceremonyTokenError(token.ErrUsed)})
	}

	user := domain.User{
		ID:        claims.Subject,
		Email:     claims.Profile.Email,
		FirstName: claims.Profile.FirstName,
		LastName:  claims.Profile.LastName,
		DOB:       claims.Profile.DOB,
	}

	parsed, err := h.parser.ParseCredentialCreationResponseBody(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid credential response"})
	}

	credential, err := h.webAuthn.CreateCredential(user, claims.Session, parsed)
	if err != nil {
		h.tracer.Trace("verify-register failed: ", user.Email, ": ", err)
		return c.JSON(http.StatusBadRequest, map[string]any{"verified": false, "error": "verification failed"})
	}

	user.Passkey = domain.PasskeyFromCredential(*credential)

	ctx := c.Request().Context()
	if err := h.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "user already exists"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to save user"})
	}

	h.cookies.set(c, user)
	h.tracer.Trace("verify-register: ", user.Email)

	return c.JSON(http.StatusOK, map[string]any{"verified": true})
}

// InitAuth は認証セレモニーを開始する。
// 許可リストには保存済みクレデンシャルただ1つだけを載せる。
func (h *PasskeyHandler) InitAuth(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email is required"})
	}

	ctx := c.Request().Context()
	user, err := h.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "no user for this email"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to look up user"})
	}

	options, session, err := h.webAuthn.BeginLogin(
		user,
		webauthn.WithUserVerification(protocol.VerificationRequired),
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to begin login: %v", err)})
	}

	tok, err := h.issuer.Issue(token.KindAuthentication, user.ID, token.Profile{}, *session)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to issue ceremony token"})
	}

	h.setCeremonyCookie(c, authInfoCookie, tok)
	h.tracer.Trace("init-auth: ", email)

	return c.JSON(http.StatusOK, options)
}

// VerifyAuth は認証セレモニーを完了する。
// クレデンシャル ID の照合は検証エンジンを呼ぶ前に行い、
// カウンタが進んでいない応答はクローンの疑いとして失敗扱いにする。
func (h *PasskeyHandler) VerifyAuth(c echo.Context) error {
	cookie, err := c.Cookie(authInfoCookie)
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "authentication info not found"})
	}
	deleteCookie(c, authInfoCookie)

	claims, err := h.issuer.Parse(cookie.Value, token.KindAuthentication)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": ceremonyTokenError(err)})
	}
	if !h.consumed.Consume(claims.ID, claims.ExpiresAt.Time) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": ceremonyTokenError(token.ErrUsed)})
	}

	ctx := c.Request().Context()
	user, err := h.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid user"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to look up user"})
	}

	parsed, err := h.parser.ParseCredentialRequestResponseBody(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid credential response"})
	}

	if !bytes.Equal(parsed.RawID, user.Passkey.ID) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "credential id mismatch"})
	}

	credential, err := h.webAuthn.ValidateLogin(user, claims.Session, parsed)
	if err != nil {
		h.tracer.Trace("verify-auth failed: ", user.Email, ": ", err)
		return c.JSON(http.StatusBadRequest, map[string]any{"verified": false, "error": "verification failed"})
	}
	if credential.Authenticator.CloneWarning {
		h.tracer.Trace("verify-auth clone warning: ", user.Email)
		return c.JSON(http.StatusBadRequest, map[string]any{"verified": false, "error": "sign counter did not increase"})
	}

	if err := h.users.UpdateSignCount(ctx, user.ID, credential.ID, credential.Authenticator.SignCount); err != nil {
		if errors.Is(err, domain.ErrCredentialMismatch) || errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "credential id mismatch"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update sign counter"})
	}

	h.cookies.set(c, user)
	h.tracer.Trace("verify-auth: ", user.Email)

	return c.JSON(http.StatusOK, map[string]any{"verified": true})
}

// setCeremonyCookie は相関トークンを httpOnly Cookie で返す。
// フロントエンドは別オリジンなので SameSite=None + Secure にする。
func (h *PasskeyHandler) setCeremonyCookie(c echo.Context, name, value string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		MaxAge:   int(h.issuer.TTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
		Path:     "/",
	})
}

func deleteCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:   name,
		Value:  "",
		MaxAge: -1,
		Path:   "/",
	})
}

// ceremonyTokenError はトークン検証エラーをクライアント向けの文言にする。
func ceremonyTokenError(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "ceremony expired"
	case errors.Is(err, token.ErrUsed):
		return "ceremony already completed"
	case errors.Is(err, token.ErrWrongKind):
		return "wrong ceremony"
	default:
		return "invalid ceremony token"
	}
}

// generateUUID は UUID v4 を生成する。
func generateUUID() string {
	uuid := make([]byte, 16)
	_, _ = rand.Read(uuid)
	uuid[6] = (uuid[6] & 0x0f) | 0x40
	uuid[8] = (uuid[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:])
}
