package mpclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	SchemePlain      = "plain"
	SchemeHMACSHA256 = "hmac-sha256"
)

var ErrUnknownScheme = errors.New("unknown proof scheme")

// Challenge is what the server's [mustlogin] asks for.
type Challenge struct {
	Scheme string
	Salt   string
}

// Prover turns a stored credential into the password field of [login].
type Prover interface {
	Prove(username, credential string, ch Challenge) (string, error)
}

type ProverFunc func(username, credential string, ch Challenge) (string, error)

func (f ProverFunc) Prove(username, credential string, ch Challenge) (string, error) {
	return f(username, credential, ch)
}

// PlainProver sends the credential unchanged. It is what servers without a
// proof_scheme expect.
type PlainProver struct{}

func (PlainProver) Prove(_, credential string, _ Challenge) (string, error) {
	return credential, nil
}

// HMACProver answers with hex(HMAC-SHA256(salt, credential)).
type HMACProver struct{}

func (HMACProver) Prove(_, credential string, ch Challenge) (string, error) {
	if ch.Salt == "" {
		return "", fmt.Errorf("%s challenge without salt", SchemeHMACSHA256)
	}
	mac := hmac.New(sha256.New, []byte(ch.Salt))
	mac.Write([]byte(credential))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// ProverFor picks the built-in prover for a challenge scheme.
func ProverFor(scheme string) (Prover, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", SchemePlain:
		return PlainProver{}, nil
	case SchemeHMACSHA256:
		return HMACProver{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}
