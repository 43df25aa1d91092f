package gateway

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// SecurityCredential encrypts the initiator password with the provider's
// certificate (RSA PKCS#1 v1.5) and base64-encodes the result.
func SecurityCredential(certPEM []byte, initiatorPassword string) (string, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", errors.New("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	publicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return "", errors.New("certificate does not contain an RSA public key")
	}

	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, publicKey, []byte(initiatorPassword))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt initiator password: %w", err)
	}

	return base64.StdEncoding.EncodeToString(encrypted), nil
}

func LoadSecurityCredential(certPath, initiatorPassword string) (string, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return "", fmt.Errorf("failed to read certificate: %w", err)
	}
	return SecurityCredential(certPEM, initiatorPassword)
}
