package drive

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"photoroom/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/oauth2"
)

// ErrAuthExpired means a user has no usable access token and no refresh token
// able to obtain one. Handlers map it to an access-denied response; it must
// never crash a request.
var ErrAuthExpired = errors.New("drive: authorization expired, re-consent required")

// Bundle is the opaque token blob stored on the user document.
type Bundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

func MarshalBundle(tok *oauth2.Token) ([]byte, error) {
	b := Bundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		b.Scope = scope
	}
	return json.Marshal(b)
}

func ParseBundle(raw []byte) (*oauth2.Token, error) {
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	if b.AccessToken == "" && b.RefreshToken == "" {
		return nil, errors.New("drive: empty token bundle")
	}
	return &oauth2.Token{
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		Expiry:       b.Expiry,
		TokenType:    "Bearer",
	}, nil
}

// BundleStore persists refreshed token material back to a user record.
type BundleStore interface {
	SaveTokenBundle(ctx context.Context, userID primitive.ObjectID, bundle []byte) error
}

// Credentials deserializes stored token bundles and refreshes expired access
// tokens against the provider's token endpoint. Two concurrent refreshes for
// the same user are tolerated: both converge on a valid token.
type Credentials struct {
	conf  *oauth2.Config
	store BundleStore
}

func NewCredentials(conf *oauth2.Config, store BundleStore) *Credentials {
	return &Credentials{conf: conf, store: store}
}

// Token returns a usable access token for user, exchanging the refresh token
// and persisting the new bundle when the stored one has expired.
func (c *Credentials) Token(ctx context.Context, user *models.User) (*oauth2.Token, error) {
	if len(user.TokenBundle) == 0 {
		return nil, ErrAuthExpired
	}

	tok, err := ParseBundle(user.TokenBundle)
	if err != nil {
		log.Printf("[Credentials] corrupt token bundle for %s: %v", user.ID.Hex(), err)
		return nil, ErrAuthExpired
	}

	if tok.Valid() {
		return tok, nil
	}

	if tok.RefreshToken == "" {
		return nil, ErrAuthExpired
	}

	fresh, err := c.conf.TokenSource(ctx, tok).Token()
	if err != nil {
		log.Printf("[Credentials] refresh rejected for %s: %v", user.ID.Hex(), err)
		return nil, ErrAuthExpired
	}

	// Google omits the refresh token on refresh responses; keep the old one.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}

	raw, err := MarshalBundle(fresh)
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveTokenBundle(ctx, user.ID, raw); err != nil {
		// The token is valid for this request either way.
		log.Printf("[Credentials] failed to persist refreshed bundle for %s: %v", user.ID.Hex(), err)
	}
	user.TokenBundle = raw

	return fresh, nil
}
