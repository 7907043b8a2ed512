// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package groups

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/stacklok/toolhub/pkg/errors"
)

// Key length bounds. The floor and ceiling are the only hard rejections;
// everything else about key quality is advisory.
const (
	MinKeyLength     = 8
	MaxKeyLength     = 128
	DefaultKeyLength = 32
)

const (
	keyLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	keyDigits  = "0123456789"
	keyCharset = keyLetters + keyDigits
)

// KeyScore is an advisory complexity estimate for a validation key.
// Nothing gates on it; only the length/charset floor rejects keys.
type KeyScore struct {
	Score           int      `json:"score"` // 0-100
	EntropyBits     float64  `json:"entropyBits"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// GenerateKey produces a random validation key of the given length using
// crypto/rand. Keys always contain at least one letter and one digit.
func GenerateKey(length int) (string, error) {
	if length < MinKeyLength || length > MaxKeyLength {
		return "", errors.NewConfigValidationError(
			fmt.Sprintf("key length must be between %d and %d", MinKeyLength, MaxKeyLength), nil)
	}

	for {
		key := make([]byte, length)
		for i := range key {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyCharset))))
			if err != nil {
				return "", fmt.Errorf("generating random key: %w", err)
			}
			key[i] = keyCharset[n.Int64()]
		}
		s := string(key)
		if strings.ContainsAny(s, keyLetters) && strings.ContainsAny(s, keyDigits) {
			return s, nil
		}
		// Rare: all letters or all digits; redraw.
	}
}

// deriveKey turns the system secret into a 32-byte AES-256 key.
func deriveKey(systemSecret string) []byte {
	sum := sha256.Sum256([]byte(systemSecret))
	return sum[:]
}

// EncryptKey encrypts a plaintext validation key with AES-256-GCM under a
// key derived from the system secret. The nonce is prepended to the
// ciphertext and the whole blob is base64-encoded.
func EncryptKey(plaintext, systemSecret string) (string, error) {
	if plaintext == "" {
		return "", errors.NewConfigValidationError("validation key is empty", nil)
	}
	if systemSecret == "" {
		return "", errors.NewConfigValidationError("system secret is not configured", nil)
	}

	block, err := aes.NewCipher(deriveKey(systemSecret))
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptKey reverses EncryptKey.
func DecryptKey(encrypted, systemSecret string) (string, error) {
	if systemSecret == "" {
		return "", errors.NewConfigValidationError("system secret is not configured", nil)
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decoding encrypted key: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(systemSecret))
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("encrypted key is truncated")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting key: %w", err)
	}
	return string(plaintext), nil
}

// VerifyKey checks a presented key against the stored encrypted one using
// a constant-time comparison after decryption. A wrong system secret or
// corrupted blob reads as a verification failure, not an error the caller
// can distinguish from a bad key.
func VerifyKey(presented, encrypted, systemSecret string) (bool, error) {
	if encrypted == "" {
		return false, errors.NewConfigValidationError("no validation key is configured", nil)
	}
	stored, err := DecryptKey(encrypted, systemSecret)
	if err != nil {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1, nil
}

// ScoreKey estimates key complexity. The result is purely advisory.
func ScoreKey(key string) KeyScore {
	var score KeyScore

	charsetSize := 0
	var hasLower, hasUpper, hasDigit, hasOther bool
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasOther = true
		}
	}
	if hasLower {
		charsetSize += 26
	}
	if hasUpper {
		charsetSize += 26
	}
	if hasDigit {
		charsetSize += 10
	}
	if hasOther {
		charsetSize += 32
	}

	if charsetSize > 0 {
		score.EntropyBits = float64(len(key)) * math.Log2(float64(charsetSize))
	}

	switch {
	case score.EntropyBits >= 128:
		score.Score = 100
	case score.EntropyBits >= 80:
		score.Score = 80
	case score.EntropyBits >= 60:
		score.Score = 60
	case score.EntropyBits >= 40:
		score.Score = 40
	default:
		score.Score = 20
	}

	if len(key) < 16 {
		score.Recommendations = append(score.Recommendations, "use at least 16 characters")
	}
	if !hasUpper || !hasLower {
		score.Recommendations = append(score.Recommendations, "mix upper and lower case letters")
	}
	if !hasDigit {
		score.Recommendations = append(score.Recommendations, "include digits")
	}
	return score
}
