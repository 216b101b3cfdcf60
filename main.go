package main

import (
	"log"
	"net/http"
	"os"

	"github.com/dchf12/passkey/domain"
	"github.com/dchf12/passkey/infra/memory"
	"github.com/dchf12/passkey/infra/sqlite"
	"github.com/dchf12/passkey/token"
	"github.com/dchf12/passkey/trace"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPName,
		RPOrigins:     []string{cfg.ClientURL},
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationRequired,
		},
		AttestationPreference: protocol.PreferNoAttestation,
		Timeouts: webauthn.TimeoutsConfig{
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    cfg.CeremonyTTL,
				TimeoutUVD: cfg.CeremonyTTL,
			},
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    cfg.CeremonyTTL,
				TimeoutUVD: cfg.CeremonyTTL,
			},
		},
	})
	if err != nil {
		log.Fatalf("failed to initialize WebAuthn: %v", err)
	}

	issuer, err := token.NewIssuer([]byte(cfg.TokenSecret), cfg.CeremonyTTL, nil)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	var users domain.UserRepository
	if cfg.DBPath != "" {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			log.Fatalf("failed to open user store: %v", err)
		}
		defer store.Close()
		users = store
	} else {
		log.Print("DB_PATH not set, using in-memory user store")
		users = memory.NewUserStore()
	}

	googleConf, err := loadGoogleConf()
	if err != nil {
		log.Printf("OAuth credentials not loaded (passkey-only mode): %v", err)
	}

	cookies := newAuthCookies([]byte(cfg.TokenSecret))
	passkeyHandler := NewPasskeyHandler(wa, users, issuer, memory.NewConsumedStore(nil), cookies, trace.New(os.Stdout))
	authHandler := NewAuthHandler(cookies, users, googleConf, cfg.ClientURL)

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.ClientURL},
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	e.GET("/init-register", passkeyHandler.InitRegister)
	e.POST("/verify-register", passkeyHandler.VerifyRegister)
	e.GET("/init-auth", passkeyHandler.InitAuth)
	e.POST("/verify-auth", passkeyHandler.VerifyAuth)

	e.GET("/me", authHandler.Me)
	e.GET("/logout", authHandler.Logout)
	e.GET("/auth/:action/:provider", authHandler.OAuth)

	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
