package domain

import (
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// オーセンティケータの種別。SimpleWebAuthn と同じ値を使う。
const (
	DeviceTypeSingleDevice = "singleDevice"
	DeviceTypeMultiDevice  = "multiDevice"
)

// User はパスキー認証のユーザーモデル。
// webauthn.User インターフェースを実装する。
// このサーバーではユーザーひとりにつきパスキーはちょうど1つ。
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	DOB       string
	Passkey   Passkey
}

// Passkey は登録済みクレデンシャル。検証エンジンが抽出した値をそのまま保持する。
type Passkey struct {
	ID         []byte
	PublicKey  []byte
	SignCount  uint32
	DeviceType string
	BackedUp   bool
	Transports []string
}

func (u User) WebAuthnID() []byte {
	return []byte(u.ID)
}

func (u User) WebAuthnName() string {
	return u.Email
}

func (u User) WebAuthnDisplayName() string {
	return u.FirstName + " " + u.LastName
}

// WebAuthnCredentials は保持しているパスキーを webauthn.Credential として返す。
// 登録セレモニー中（未登録）の場合は空を返す。
func (u User) WebAuthnCredentials() []webauthn.Credential {
	if len(u.Passkey.ID) == 0 {
		return nil
	}
	return []webauthn.Credential{u.Passkey.Credential()}
}

// Credential はライブラリ形式へ変換する。
func (p Passkey) Credential() webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(p.Transports))
	for _, t := range p.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:        p.ID,
		PublicKey: p.PublicKey,
		Transport: transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: p.DeviceType == DeviceTypeMultiDevice,
			BackupState:    p.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: p.SignCount,
		},
	}
}

// PasskeyFromCredential は検証エンジンが返したクレデンシャルを保存形式へ変換する。
func PasskeyFromCredential(cred webauthn.Credential) Passkey {
	deviceType := DeviceTypeSingleDevice
	if cred.Flags.BackupEligible {
		deviceType = DeviceTypeMultiDevice
	}
	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	return Passkey{
		ID:         cred.ID,
		PublicKey:  cred.PublicKey,
		SignCount:  cred.Authenticator.SignCount,
		DeviceType: deviceType,
		BackedUp:   cred.Flags.BackupState,
		Transports: transports,
	}
}
