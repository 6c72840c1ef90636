package testutil

import (
	"fmt"
	"net/http"
	"testing"
)

const DefaultPassword = "Passw0rd!"

// Session is a signed-in client and the account behind it.
type Session struct {
	*Client
	UserID string
	Email  string
}

// RegisterVerified registers a patient, reads the code from the database and
// verifies it, leaving the returned client signed in.
func RegisterVerified(t *testing.T, env *TestEnv, mongo *MongoHelper, name string) *Session {
	t.Helper()

	client := NewClient(env.ServerURL)
	email := fmt.Sprintf("%s@example.com", name)

	resp := client.POST(t, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": DefaultPassword,
	})
	AssertStatusCode(t, resp, http.StatusCreated)

	var registered struct {
		UserID string `json:"userId"`
	}
	if err := resp.DecodeJSON(&registered); err != nil || registered.UserID == "" {
		t.Fatalf("register returned no userId: %s", string(resp.Body))
	}

	resp = client.POST(t, "/api/auth/verify-otp", map[string]string{
		"userId": registered.UserID,
		"otp":    mongo.PendingOTP(t, email),
	})
	AssertStatusCode(t, resp, http.StatusOK)

	return &Session{Client: client, UserID: registered.UserID, Email: email}
}
