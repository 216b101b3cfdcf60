package main

import (
	"io"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// ceremonyVerifier は検証エンジン（go-webauthn）との接点。
// チャレンジ・オリジン・RP ID・署名の照合はすべてエンジン側が行い、
// ハンドラーは呼ぶタイミングと渡すパラメータだけに責任を持つ。
type ceremonyVerifier interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// responseParser はブラウザからのレスポンス本文の構文解析を分離する。
type responseParser interface {
	ParseCredentialCreationResponseBody(body io.Reader) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBody(body io.Reader) (*protocol.ParsedCredentialAssertionData, error)
}

type protocolParser struct{}

func (protocolParser) ParseCredentialCreationResponseBody(body io.Reader) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBody(body)
}

func (protocolParser) ParseCredentialRequestResponseBody(body io.Reader) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBody(body)
}

var _ ceremonyVerifier = (*webauthn.WebAuthn)(nil)
