package auth

import (
	"errors"
	"testing"
	"time"

	"collabcore/internal/model"
)

func TestSignAndDecodeRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, expires, err := SignToken(secret, "collabcore", "user-1", "ada", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if expires.Before(time.Now()) {
		t.Fatal("expected expiry in the future")
	}

	decoder := NewJWTDecoder(string(secret), "collabcore")
	claims, err := decoder.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "ada" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestDecodeRejectsWrongSecret(t *testing.T) {
	token, _, err := SignToken([]byte("secret-a"), "collabcore", "user-1", "ada", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	decoder := NewJWTDecoder("secret-b", "collabcore")
	_, err = decoder.Decode(token)
	if !errors.Is(err, model.ErrWebSocketAuthentication) {
		t.Fatalf("err = %v, want ErrWebSocketAuthentication", err)
	}
}

func TestDecodeRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	token, _, err := SignToken(secret, "collabcore", "user-1", "ada", -time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	decoder := NewJWTDecoder(string(secret), "collabcore")
	_, err = decoder.Decode(token)
	if !errors.Is(err, model.ErrWebSocketAuthentication) {
		t.Fatalf("err = %v, want ErrWebSocketAuthentication", err)
	}
}

func TestDecodeRejectsMismatchedIssuer(t *testing.T) {
	secret := []byte("test-secret")
	token, _, err := SignToken(secret, "issuer-a", "user-1", "ada", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	decoder := NewJWTDecoder(string(secret), "issuer-b")
	_, err = decoder.Decode(token)
	if !errors.Is(err, model.ErrWebSocketAuthentication) {
		t.Fatalf("err = %v, want ErrWebSocketAuthentication", err)
	}
}
