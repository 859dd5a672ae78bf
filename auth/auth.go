package auth

import (
	"net/http"

	firebase "firebase.google.com/go/v4"
)

// Identity is what the rest of the app consumes about the signed-in
// user: the opaque Firebase UID and the account email.
type Identity struct {
	UID   string
	Email string
}

// Authenticate verifies the request's bearer ID token against Firebase
// Auth and returns the caller's identity.
func Authenticate(req *http.Request) (Identity, error) {
	ctx := req.Context()
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return Identity{}, err
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return Identity{}, err
	}

	jwtToken, err := bearerTokenFromRequest(req)
	if err != nil {
		return Identity{}, err
	}

	token, err := client.VerifyIDToken(ctx, jwtToken)
	if err != nil {
		return Identity{}, err
	}

	email, _ := token.Claims["email"].(string)
	return Identity{UID: token.UID, Email: email}, nil
}
