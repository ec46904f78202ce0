package email

import (
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/toorop/go-dkim"
)

// DKIMSigner adds a DKIM-Signature header to outgoing messages.
type DKIMSigner struct {
	privateKeyPEM []byte
	domain        string
	selector      string
}

// NewDKIMSigner loads a PEM encoded RSA key (PKCS#1) from keyPath.
func NewDKIMSigner(domain, selector, keyPath string) (*DKIMSigner, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading DKIM key %s: %w", keyPath, err)
	}
	return newDKIMSigner(domain, selector, keyData)
}

func newDKIMSigner(domain, selector string, keyData []byte) (*DKIMSigner, error) {
	block, _ := pem.Decode(keyData)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, errors.New("DKIM key is not a PEM encoded RSA private key")
	}

	return &DKIMSigner{
		privateKeyPEM: keyData,
		domain:        domain,
		selector:      selector,
	}, nil
}

// Sign returns raw with a relaxed/relaxed DKIM signature prepended.
func (s *DKIMSigner) Sign(raw []byte) ([]byte, error) {
	options := dkim.NewSigOptions()
	options.PrivateKey = s.privateKeyPEM
	options.Domain = s.domain
	options.Selector = s.selector
	options.SignatureExpireIn = 3600
	options.Headers = []string{"from", "to", "subject", "date", "message-id"}
	options.AddSignatureTimestamp = true
	options.Canonicalization = "relaxed/relaxed"

	signed := append([]byte(nil), raw...)
	if err := dkim.Sign(&signed, options); err != nil {
		return nil, fmt.Errorf("DKIM signing for %s: %w", s.domain, err)
	}

	return signed, nil
}
