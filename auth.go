package main

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dchf12/passkey/domain"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/objx"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const (
	authCookieName       = "auth"
	oauthStateCookieName = "oauthstate"
)

// authCookies はセレモニー完了後に発行するログイン Cookie の署名と検証。
// 値は objx の base64 ペイロードに HMAC-SHA256 を付けたもの。
type authCookies struct {
	secret []byte
}

func newAuthCookies(secret []byte) *authCookies {
	return &authCookies{secret: secret}
}

func (a *authCookies) make(data map[string]any) string {
	payload := objx.New(data).MustBase64()
	return a.sign(payload) + "." + payload
}

func (a *authCookies) parse(raw string) (objx.Map, error) {
	parts := strings.SplitN(raw, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed auth cookie")
	}
	if !hmac.Equal([]byte(parts[0]), []byte(a.sign(parts[1]))) {
		return nil, fmt.Errorf("auth cookie signature mismatch")
	}
	return objx.FromBase64(parts[1])
}

func (a *authCookies) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// set はログイン済みを表す署名付き Cookie を設定する。
func (a *authCookies) set(c echo.Context, user domain.User) {
	m := md5.New()
	_, _ = io.WriteString(m, strings.ToLower(user.Email))
	gravatarID := fmt.Sprintf("%x", m.Sum(nil))

	value := a.make(map[string]any{
		"userid":     user.ID,
		"name":       user.FirstName + " " + user.LastName,
		"email":      user.Email,
		"avatar_url": fmt.Sprintf("https://www.gravatar.com/avatar/%s?d=mp", gravatarID),
	})
	c.SetCookie(&http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
		Path:     "/",
	})
}

func (a *authCookies) clear(c echo.Context) {
	deleteCookie(c, authCookieName)
}

// AuthHandler はログインセッション周りのハンドラー。
// Google OAuth は登録済みアカウントの代替サインインとしてだけ使い、
// アカウント作成は登録セレモニー経由に限る。
type AuthHandler struct {
	cookies    *authCookies
	users      domain.UserRepository
	googleConf *oauth2.Config
	clientURL  string
}

// NewAuthHandler は AuthHandler を生成する。googleConf は nil でもよい
// （パスキーのみのモード）。
func NewAuthHandler(cookies *authCookies, users domain.UserRepository, googleConf *oauth2.Config, clientURL string) *AuthHandler {
	return &AuthHandler{
		cookies:    cookies,
		users:      users,
		googleConf: googleConf,
		clientURL:  clientURL,
	}
}

// Me は auth Cookie のユーザー情報を返す。未ログインは 401。
func (h *AuthHandler) Me(c echo.Context) error {
	cookie, err := c.Cookie(authCookieName)
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not signed in"})
	}
	userData, err := h.cookies.parse(cookie.Value)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not signed in"})
	}
	return c.JSON(http.StatusOK, map[string]any(userData))
}

// Logout は auth Cookie を破棄する。
func (h *AuthHandler) Logout(c echo.Context) error {
	h.cookies.clear(c)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// OAuth は /auth/:action/:provider を振り分ける。
func (h *AuthHandler) OAuth(c echo.Context) error {
	switch action := c.Param("action"); action {
	case "login":
		return h.handleLogin(c)
	case "callback":
		return h.handleCallback(c)
	default:
		return c.String(http.StatusNotFound, fmt.Sprintf("Auth action %s not supported", action))
	}
}

func (h *AuthHandler) handleLogin(c echo.Context) error {
	provider := c.Param("provider")
	if provider != "google" {
		return c.String(http.StatusBadRequest, fmt.Sprintf("Unsupported provider: %s", provider))
	}
	if h.googleConf == nil {
		return c.String(http.StatusServiceUnavailable, "OAuth is not configured")
	}

	state := newOAuthState()
	c.SetCookie(&http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		MaxAge:   300,
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
	})
	loginURL := h.googleConf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	return c.Redirect(http.StatusTemporaryRedirect, loginURL)
}

func (h *AuthHandler) handleCallback(c echo.Context) error {
	provider := c.Param("provider")
	if provider != "google" {
		return c.String(http.StatusBadRequest, fmt.Sprintf("Unsupported provider: %s", provider))
	}
	if h.googleConf == nil {
		return c.String(http.StatusServiceUnavailable, "OAuth is not configured")
	}

	stateCookie, err := c.Cookie(oauthStateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != c.QueryParam("state") {
		return c.String(http.StatusBadRequest, "OAuth state mismatch")
	}
	deleteCookie(c, oauthStateCookieName)

	ctx := c.Request().Context()
	token, err := h.googleConf.Exchange(ctx, c.QueryParam("code"))
	if err != nil {
		return c.String(http.StatusBadRequest, fmt.Sprintf("Code exchange failed: %s", err.Error()))
	}
	client := h.googleConf.Client(ctx, token)
	oauth2Service, err := oauth2api.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return c.String(http.StatusBadRequest, fmt.Sprintf("Failed to create a new oauth2 service: %s", err.Error()))
	}
	userInfo, err := oauth2Service.Userinfo.Get().Do()
	if err != nil {
		return c.String(http.StatusBadRequest, fmt.Sprintf("Failed to get user info: %s", err.Error()))
	}

	user, err := h.users.GetByEmail(ctx, userInfo.Email)
	if err != nil {
		// アカウント作成はパスキー登録セレモニーだけが行う。
		return c.String(http.StatusForbidden, fmt.Sprintf("No account for %s", userInfo.Email))
	}

	h.cookies.set(c, user)
	return c.Redirect(http.StatusTemporaryRedirect, h.clientURL)
}

func newOAuthState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Credentials は secret.json の Google OAuth クライアント設定。
type Credentials struct {
	Web struct {
		ClientID     string   `json:"client_id"`
		ClientSecret string   `json:"client_secret"`
		RedirectURL  []string `json:"redirect_uris"`
		AuthURL      string   `json:"auth_uri"`
		TokenURL     string   `json:"token_uri"`
	} `json:"web"`
}

// loadGoogleConf は secret.json から OAuth 設定を組み立てる。
// ファイルが無ければ nil を返し、パスキーのみのモードになる。
func loadGoogleConf() (*oauth2.Config, error) {
	credsFile, err := os.ReadFile("secret.json")
	if err != nil {
		return nil, fmt.Errorf("error reading credentials file: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(credsFile, &creds); err != nil {
		return nil, fmt.Errorf("error unmarshalling credentials: %w", err)
	}
	if len(creds.Web.RedirectURL) == 0 {
		return nil, fmt.Errorf("credentials file has no redirect_uris")
	}
	return &oauth2.Config{
		ClientID:     creds.Web.ClientID,
		ClientSecret: creds.Web.ClientSecret,
		RedirectURL:  creds.Web.RedirectURL[0],
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  creds.Web.AuthURL,
			TokenURL: creds.Web.TokenURL,
		},
	}, nil
}
