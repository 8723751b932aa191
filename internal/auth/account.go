package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/irdrive/internal/session"
)

// account identifies the user behind a token response.
type account struct {
	ID       string // oid.tid, or sub when the tenant claims are absent
	Username string
}

// accountFromToken reads the account out of the id_token in tok, if any.
// The id_token arrives directly from the token endpoint over TLS, so its
// signature is not checked.
func accountFromToken(tok *oauth2.Token) (account, bool, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return account{}, false, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return account{}, false, fmt.Errorf("auth: parsing id_token: %w", err)
	}

	oid, _ := claims["oid"].(string)
	tid, _ := claims["tid"].(string)
	sub, _ := claims["sub"].(string)

	acct := account{ID: sub}
	if oid != "" && tid != "" {
		acct.ID = oid + "." + tid
	}

	for _, key := range []string{"preferred_username", "email", "name"} {
		if v, _ := claims[key].(string); v != "" {
			acct.Username = v
			break
		}
	}

	return acct, acct.ID != "", nil
}

// sessionToken converts a provider token received at now. The expiry is
// counted from now when the provider sent expires_in, and falls back to
// fallbackTokenLifetime when it sent no lifetime at all.
func sessionToken(tok *oauth2.Token, requested []string, now time.Time) *session.Token {
	var expires time.Time

	switch {
	case tok.ExpiresIn > 0:
		expires = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	case !tok.Expiry.IsZero():
		expires = tok.Expiry
	default:
		expires = now.Add(fallbackTokenLifetime)
	}

	scopes := requested
	if granted, _ := tok.Extra("scope").(string); granted != "" {
		scopes = strings.Fields(granted)
	}

	return &session.Token{
		AccessToken: tok.AccessToken,
		ExpiresAt:   expires,
		Scopes:      scopes,
	}
}
