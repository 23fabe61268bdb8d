// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package objectstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"
)

// Query parameters carried by locally signed URLs.
const (
	QueryExpires   = "expires"
	QuerySignature = "signature"
)

var (
	// ErrSignatureInvalid is returned when a locally signed URL fails verification.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrSignatureExpired is returned when a locally signed URL is past its expiry.
	ErrSignatureExpired = errors.New("signature expired")
)

func urlSignature(key []byte, name string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(name))
	_, _ = mac.Write([]byte{'\n'})
	_, _ = mac.Write([]byte(strconv.FormatInt(expiresUnix, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func verifyURLSignature(key []byte, name, expires, signature string, now time.Time) error {
	if len(key) == 0 {
		return ErrCannotSign
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || exp <= 0 {
		return ErrSignatureInvalid
	}
	want := urlSignature(key, name, exp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrSignatureInvalid
	}
	if now.Unix() >= exp {
		return ErrSignatureExpired
	}
	return nil
}
