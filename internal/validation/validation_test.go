package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/i18n"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"uuid", "3f2b8c1e-9a4d-4c8e-b1f0-2d6e7a9c0b11", false},
		{"numeric", "42", false},
		{"empty", "", true},
		{"path traversal", "../etc", true},
		{"slash", "a/b", true},
		{"query", "a?b=c", true},
		{"space", "a b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://shop.example", false},
		{"with path", "http://shop.example.com/store", false},
		{"with port", "https://shop.example:8443", false},
		{"ip", "http://192.0.2.10", false},
		{"idn", "https://bücher.example", false},
		{"bare word", "not-a-url", true},
		{"no scheme", "shop.example", true},
		{"ftp", "ftp://shop.example", true},
		{"empty", "", true},
		{"bad host", "https://exa mple.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSite(t *testing.T) {
	assert.Empty(t, Site(api.Site{Name: "Shop", Domain: "https://shop.example"}))

	fe := Site(api.Site{Name: "Shop", Domain: "not-a-url"})
	require.Contains(t, fe, "domain")
	assert.Equal(t, i18n.ValidationURL, fe["domain"].Key)
	assert.NotContains(t, fe, "name")

	fe = Site(api.Site{Name: "  ", Domain: "https://shop.example"})
	assert.Equal(t, "Name is required", fe.Localize(i18n.NewPrinter(i18n.DefaultLang))["name"])
}

func TestRule(t *testing.T) {
	ok := api.Rule{
		Name:   "block-sqli",
		Action: api.ActionBlock,
		Status: api.RuleEnabled,
		Conditions: []api.Condition{
			{Field: "uri", Operator: "contains", Value: "union select"},
		},
	}
	assert.Empty(t, Rule(ok))

	bad := ok
	bad.Action = "drop"
	bad.Status = ""
	bad.Conditions = []api.Condition{{Field: "uri"}}
	fe := Rule(bad)
	assert.Contains(t, fe, "action")
	assert.Contains(t, fe, "status")
	assert.Contains(t, fe, "conditions")
	assert.Equal(t, "Must be one of: block, allow, challenge", fe.Localize(nil)["action"])
}

func TestCertificate(t *testing.T) {
	certPEM, keyPEM := selfSigned(t, "shop.example")
	_, otherKey := selfSigned(t, "other.example")

	assert.Empty(t, Certificate(api.Certificate{Domain: "shop.example", Certificate: certPEM, PrivateKey: keyPEM}))

	fe := Certificate(api.Certificate{Domain: "shop.example", Certificate: certPEM, PrivateKey: otherKey})
	assert.Equal(t, i18n.ValidationKeyPair, fe["privateKey"].Key)

	fe = Certificate(api.Certificate{Domain: "", Certificate: "garbage", PrivateKey: ""})
	assert.Equal(t, i18n.ValidationRequired, fe["domain"].Key)
	assert.Equal(t, i18n.ValidationPEM, fe["certificate"].Key)
	assert.Equal(t, i18n.ValidationRequired, fe["privateKey"].Key)
}

func TestLoginAndReset(t *testing.T) {
	assert.Empty(t, Login("alice", "secret1"))
	assert.Contains(t, Login("alice", "short"), "password")
	assert.Contains(t, Login("", "secret1"), "username")

	fe := ResetPassword(api.ResetPasswordRequest{CurrentPassword: "secret1", NewPassword: "abc"})
	assert.Equal(t, "Password must be at least 6 characters", fe.Localize(nil)["newPassword"])
}

func TestFieldErrors_Localize(t *testing.T) {
	fe := FieldErrors{}
	fe.Add("name", i18n.ValidationRequired, Label("name"))
	fe.Add("name", i18n.ValidationURL)

	zh := fe.Localize(i18n.ForLanguage("zh-CN"))
	assert.Equal(t, "名称不能为空", zh["name"], "first problem wins")

	var verr *Error
	require.ErrorAs(t, fe.Err(), &verr)
	assert.Equal(t, "validation failed: name: Name is required", verr.Error())
	assert.NoError(t, FieldErrors{}.Err())
}

func TestParseCertificate(t *testing.T) {
	certPEM, _ := selfSigned(t, "shop.example")

	info, err := ParseCertificate(certPEM)
	require.NoError(t, err)
	assert.Equal(t, "shop.example", info.Subject)
	assert.Equal(t, "shop.example", info.Issuer)
	assert.Equal(t, api.CertValid, info.Status(time.Now()))
	assert.Equal(t, api.CertExpired, info.Status(info.NotAfter.Add(time.Second)))

	_, err = ParseCertificate("not pem")
	assert.Error(t, err)
}

func selfSigned(t *testing.T, cn string) (certPEM, keyPEM string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	return certPEM, keyPEM
}
