package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Blob download tokens are short-lived HS256 JWTs scoped to one project and
// one blob, so a leaked snapshot response cannot be replayed against other
// blobs or after the token expires.

const DefaultBlobTokenTTL = 5 * time.Minute

type blobClaims struct {
	ProjectID string `json:"project_id"`
	Hash      string `json:"hash"`
	Exp       int64  `json:"exp"`
}

func SignBlobToken(secret, projectID, hash string, expiresAt time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("blob token secret is required")
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payloadBytes, err := json.Marshal(blobClaims{
		ProjectID: projectID,
		Hash:      hash,
		Exp:       expiresAt.Unix(),
	})
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signingInput := header + "." + payload
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signingInput))
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return signingInput + "." + signature, nil
}

// VerifyBlobToken checks the signature, expiry, and scope of a blob token.
func VerifyBlobToken(secret, token, projectID, hash string, now time.Time) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return errors.New("invalid token format")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))
	expected := mac.Sum(nil)
	provided, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || !hmac.Equal(provided, expected) {
		return errors.New("token signature mismatch")
	}
	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return errors.New("invalid token payload")
	}
	var claims blobClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return errors.New("invalid token payload")
	}
	if now.Unix() >= claims.Exp {
		return errors.New("token expired")
	}
	if claims.ProjectID != projectID || claims.Hash != hash {
		return errors.New("token scope mismatch")
	}
	return nil
}
