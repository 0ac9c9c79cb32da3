// Package auth builds the authentication material carried on the connect
// URL. The realtime endpoint accepts credentials as a query parameter
// (browsers cannot set headers on WebSocket upgrades), either HTTP Basic
// credentials or a bearer token, optionally accompanied by an identity
// signature proving ownership of the client-chosen identity.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

var ErrNoCredentials = errors.New("no credentials configured")

// Credentials holds one of the two supported credential forms.
type Credentials struct {
	// Basic credentials.
	Username string
	Password string

	// Bearer token. Takes precedence when set.
	Token string
}

// IdentitySignature proves the caller may claim its identity. The key
// version selects which signing key the server verifies against.
type IdentitySignature struct {
	Signature  string
	KeyVersion int
}

// AuthParam returns the value of the "auth" query parameter.
func (c Credentials) AuthParam() (string, error) {
	if c.Token != "" {
		return "Bearer " + c.Token, nil
	}
	if c.Username != "" {
		basic := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
		return "Basic " + basic, nil
	}
	return "", ErrNoCredentials
}

// ConnectURL assembles the WebSocket connect URL for a channel:
// wss://<host>/project/<project>/ws/<class>/<id> plus auth and optional
// identity-signature query parameters.
func ConnectURL(endpoint, project, class, id string, creds Credentials, sig *IdentitySignature) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	base.Path = fmt.Sprintf("/project/%s/ws/%s/%s",
		url.PathEscape(project), url.PathEscape(class), url.PathEscape(id))

	q := url.Values{}
	authParam, err := creds.AuthParam()
	if err != nil {
		return "", err
	}
	q.Set("auth", authParam)

	if sig != nil {
		q.Set("idSignature", sig.Signature)
		q.Set("idSignatureKeyVersion", strconv.Itoa(sig.KeyVersion))
	}

	base.RawQuery = q.Encode()
	return base.String(), nil
}
