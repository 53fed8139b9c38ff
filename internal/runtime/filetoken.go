package runtime

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PurposeOCRAccess scopes a file token to OCR worker downloads.
const PurposeOCRAccess = "ocr-access"

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens and expiry.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrWrongPurpose is returned when the token purpose does not match.
	ErrWrongPurpose = errors.New("token purpose mismatch")
	// ErrDocumentMismatch is returned when the embedded document id differs.
	ErrDocumentMismatch = errors.New("token not valid for this document")
)

// SignFileToken issues a purpose-scoped token granting access to one document.
func SignFileToken(documentID, purpose string, secret []byte, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"document_id": documentID,
		"purpose":     purpose,
		"exp":         time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyFileToken checks signature, expiry, purpose and document binding.
// The document comparison is on canonical string form so numeric claims
// written by other producers still match.
func VerifyFileToken(tok, documentID, purpose string, secret []byte) error {
	parsed, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return ErrTokenInvalid
	}
	if p, _ := claims["purpose"].(string); p != purpose {
		return ErrWrongPurpose
	}
	if canonicalID(claims["document_id"]) != documentID {
		return ErrDocumentMismatch
	}
	return nil
}

func canonicalID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		// JSON numbers decode as float64
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}
