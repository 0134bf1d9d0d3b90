package validation

import (
	"crypto/tls"
	"encoding/pem"
	"strings"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/i18n"
)

// MinPasswordLength is enforced on login and password reset forms.
const MinPasswordLength = 6

func required(fe FieldErrors, field, value string) bool {
	if strings.TrimSpace(value) == "" {
		fe.Add(field, i18n.ValidationRequired, Label(field))
		return false
	}
	return true
}

func oneOf(fe FieldErrors, field, value string, allowed []string) {
	if err := ValidateAllowlist(value, allowed); err != nil {
		fe.Add(field, i18n.ValidationOneOf, strings.Join(allowed, ", "))
	}
}

// Site validates the site dialog.
func Site(s api.Site) FieldErrors {
	fe := FieldErrors{}
	required(fe, "name", s.Name)
	if err := ValidateURL(s.Domain); err != nil {
		fe.Add("domain", i18n.ValidationURL)
	}
	return fe
}

// Rule validates the rule dialog.
func Rule(r api.Rule) FieldErrors {
	fe := FieldErrors{}
	required(fe, "name", r.Name)
	oneOf(fe, "action", r.Action, api.RuleActions)
	oneOf(fe, "status", r.Status, api.RuleStatuses)
	for i, c := range r.Conditions {
		if strings.TrimSpace(c.Field) == "" || strings.TrimSpace(c.Operator) == "" {
			fe.Add("conditions", i18n.ValidationCondition, i+1)
			break
		}
	}
	return fe
}

// Certificate validates the certificate dialog. Both PEM blocks must decode
// and the private key must belong to the certificate.
func Certificate(c api.Certificate) FieldErrors {
	fe := FieldErrors{}
	if required(fe, "domain", c.Domain) {
		if err := ValidateHostname(c.Domain); err != nil {
			fe.Add("domain", i18n.ValidationURL)
		}
	}
	certOK := required(fe, "certificate", c.Certificate) && checkPEM(fe, "certificate", c.Certificate)
	keyOK := required(fe, "privateKey", c.PrivateKey) && checkPEM(fe, "privateKey", c.PrivateKey)
	if certOK && keyOK {
		if _, err := tls.X509KeyPair([]byte(c.Certificate), []byte(c.PrivateKey)); err != nil {
			fe.Add("privateKey", i18n.ValidationKeyPair)
		}
	}
	return fe
}

func checkPEM(fe FieldErrors, field, value string) bool {
	block, _ := pem.Decode([]byte(strings.TrimSpace(value)))
	if block == nil {
		fe.Add(field, i18n.ValidationPEM)
		return false
	}
	return true
}

// Login validates the sign-in form.
func Login(username, password string) FieldErrors {
	fe := FieldErrors{}
	required(fe, "username", username)
	if required(fe, "password", password) && len(password) < MinPasswordLength {
		fe.Add("password", i18n.ValidationPasswordLe, MinPasswordLength)
	}
	return fe
}

// ResetPassword validates the change-password form.
func ResetPassword(req api.ResetPasswordRequest) FieldErrors {
	fe := FieldErrors{}
	required(fe, "currentPassword", req.CurrentPassword)
	if required(fe, "newPassword", req.NewPassword) && len(req.NewPassword) < MinPasswordLength {
		fe.Add("newPassword", i18n.ValidationPasswordLe, MinPasswordLength)
	}
	return fe
}
