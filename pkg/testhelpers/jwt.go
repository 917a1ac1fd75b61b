// Package testhelpers provides utilities for testing ekaya-visibility components.
package testhelpers

import (
	"encoding/base64"
	"fmt"
)

// TestAudience matches the default auth.audience setting.
const TestAudience = "visibility"

// GenerateTestJWT creates an unsigned token (alg: none) for servers running
// with verification disabled. sub should be the owner's UUID.
func GenerateTestJWT(sub, email string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := fmt.Sprintf(`{"sub":"%s","aud":"%s"`, sub, TestAudience)
	if email != "" {
		payload += fmt.Sprintf(`,"email":"%s"`, email)
	}
	payload += "}"

	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub, email string) string {
	return "Bearer " + GenerateTestJWT(sub, email)
}
