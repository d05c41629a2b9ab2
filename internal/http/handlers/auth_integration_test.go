package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hongminglow/contacts-be/internal/auth"
	"github.com/hongminglow/contacts-be/internal/models"
	"github.com/hongminglow/contacts-be/internal/storage"
	mongostore "github.com/hongminglow/contacts-be/internal/storage/mongo"
)

// TestAuthIntegration exercises sign-up, login and owner-scoped contacts
// against a live MongoDB.
func TestAuthIntegration(t *testing.T) {
	if os.Getenv("RUN_MONGO_INTEGRATION") != "true" {
		t.Skip("set RUN_MONGO_INTEGRATION=true to run this integration test")
	}

	loadDotEnv()
	dbURI := mustGetEnv(t, "DB_URI")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := mongostore.NewStore(ctx, dbURI)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	defer store.Close(ctx)
	if err := store.EnsureIndexes(ctx, storage.Indexes); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	tokens := auth.NewTokenManager("integration-secret", "contacts-be", time.Minute)
	authn, err := auth.NewAuthenticator(store.Collection(storage.UsersCollection), testHasher, tokens)
	if err != nil {
		t.Fatalf("init authenticator: %v", err)
	}
	api, err := NewAPI(store, testHasher, nil)
	if err != nil {
		t.Fatalf("build api: %v", err)
	}
	router := mux.NewRouter()
	NewAuthHandler(authn, tokens).Register(router)
	if err := api.Register(router); err != nil {
		t.Fatalf("mount api: %v", err)
	}

	ts := httptest.NewServer(authn.Middleware(router))
	defer ts.Close()

	email := fmt.Sprintf("apitest_%d@example.com", time.Now().UnixNano())
	password := fmt.Sprintf("Pass!%d", time.Now().UnixNano())

	user := requestSignUp(t, ts.URL, email, password)
	defer store.Collection(storage.UsersCollection).DeleteOne(context.Background(), bson.M{"_id": user.ID})
	if user.Email != email || user.ID == "" {
		t.Fatalf("sign-up mismatch: got %+v", user)
	}

	token := requestLogin(t, ts.URL, email, password)
	if strings.TrimSpace(token) == "" {
		t.Fatal("login response missing token")
	}

	var me models.PublicUser
	status := doJSON(t, http.MethodGet, ts.URL+"/me", token, nil, &me)
	if status != http.StatusOK || me != user {
		t.Fatalf("me: status %d body %+v", status, me)
	}

	var contact map[string]any
	status = doJSON(t, http.MethodPost, ts.URL+"/users/"+user.ID+"/contacts", token, map[string]string{"firstName": "Mary"}, &contact)
	if status != http.StatusCreated {
		t.Fatalf("insert contact status = %d", status)
	}
	if _, ok := contact["user"]; ok {
		t.Fatalf("contact leaked owner: %+v", contact)
	}

	status = doJSON(t, http.MethodDelete, ts.URL+"/users/"+user.ID, token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("remove user status = %d", status)
	}

	t.Logf("created user %s (id=%s), logged in and cleaned up", email, user.ID)
}

func requestSignUp(t *testing.T, baseURL, email, password string) models.PublicUser {
	t.Helper()
	var out models.PublicUser
	status := doJSON(t, http.MethodPost, baseURL+"/users", "", map[string]string{"email": email, "password": password}, &out)
	if status != http.StatusCreated {
		t.Fatalf("sign-up status = %d", status)
	}
	return out
}

func requestLogin(t *testing.T, baseURL, email, password string) string {
	t.Helper()
	var out struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	status := doJSON(t, http.MethodPost, baseURL+"/login", "", map[string]string{"email": email, "password": password}, &out)
	if status != http.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	return out.Data.Token
}

func doJSON(t *testing.T, method, url, token string, payload, out any) int {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func mustGetEnv(t *testing.T, key string) string {
	t.Helper()
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		t.Fatalf("%s is required", key)
	}
	return val
}

func loadDotEnv() {
	paths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
		"../../../../.env",
	}
	for _, path := range paths {
		_ = godotenv.Overload(path)
	}
}
