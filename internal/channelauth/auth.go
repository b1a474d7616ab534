// Package channelauth authorizes room-topic subscriptions. A successful
// authorization yields a signed grant the realtime layer can verify
// without a store round trip, carrying the subscriber's presence data.
package channelauth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/driftchat/drift/internal/domain"
	"github.com/driftchat/drift/internal/topics"
)

// PresenceData is attached to a grant and is visible to every subscriber
// of the same room. Treat it as public-within-room information.
type PresenceData struct {
	UserID   string `json:"user_id"`
	UserInfo struct {
		Name string `json:"name"`
	} `json:"user_info"`
}

// GrantClaims is the signed content of a subscription grant.
type GrantClaims struct {
	SocketID string       `json:"socket_id"`
	Channel  string       `json:"channel"`
	Presence PresenceData `json:"presence"`
	jwt.RegisteredClaims
}

// Grant is the authorization response handed back to the client. Auth is
// the signed token; ChannelData echoes the presence payload the client
// announces to the channel.
type Grant struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data"`
}

// Authorizer signs and verifies subscription grants.
type Authorizer struct {
	secret []byte
	ttl    time.Duration
}

// NewAuthorizer creates an Authorizer signing grants with the given secret.
// Grants expire after ttl; they authorize the initial subscription
// handshake, not long-lived access.
func NewAuthorizer(secret string, ttl time.Duration) *Authorizer {
	return &Authorizer{secret: []byte(secret), ttl: ttl}
}

// Authorize checks that the caller is an authenticated identity and that
// the channel name is well formed, then returns a signed grant carrying
// the caller's presence data.
func (a *Authorizer) Authorize(socketID, channel string, identity domain.Identity) (*Grant, error) {
	if identity.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := topics.Validate(channel); err != nil {
		return nil, err
	}

	presence := PresenceData{UserID: identity.UserID}
	presence.UserInfo.Name = identity.DisplayName

	now := time.Now()
	claims := &GrantClaims{
		SocketID: socketID,
		Channel:  channel,
		Presence: presence,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Issuer:    "drift",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("signing grant: %w", err)
	}

	channelData, err := json.Marshal(presence)
	if err != nil {
		return nil, fmt.Errorf("encoding presence data: %w", err)
	}

	return &Grant{Auth: signed, ChannelData: string(channelData)}, nil
}

// Verify parses a grant token and validates its signature and expiry.
func (a *Authorizer) Verify(tokenString string) (*GrantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &GrantClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*GrantClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
