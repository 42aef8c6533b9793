package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/engine"
	"assetline/internal/migrate"
	"assetline/internal/server"
)

func main() {
	workspace := "/tmp/assetline-check2"
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		panic(err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		panic(err)
	}
	cfg := config.Default("assetline")
	e := engine.New(conn, cfg)
	if err := e.BootstrapRBAC(context.Background(), "checkcfg"); err != nil {
		panic(err)
	}
	if err := e.GrantRole(context.Background(), "tester", "manager", "checkcfg"); err != nil {
		panic(err)
	}
	jwtSecret := "test-secret"
	h, err := server.New(server.Config{Engine: e, BasePath: "/v0", Auth: server.AuthConfig{Enabled: true, JWTSecret: jwtSecret}})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()
	token := devLogin(ts.URL)

	body := map[string]any{
		"address":            "901 Pelican Way",
		"city":               "Largo",
		"state":              "FL",
		"upb":                "143250.00",
		"delinquency_status": "90",
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v0/am/assets/", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var resp any
	_ = json.NewDecoder(res.Body).Decode(&resp)
	fmt.Printf("status=%d resp=%v\n", res.StatusCode, resp)
}

func devLogin(base string) string {
	b, _ := json.Marshal(map[string]any{"actor_id": "tester", "roles": []string{"manager"}})
	res, err := http.Post(base+"/v0/core/auth/dev-login/", "application/json", bytes.NewReader(b))
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		panic(err)
	}
	if out.Token == "" {
		panic(fmt.Sprintf("dev-login status %d, empty token", res.StatusCode))
	}
	return out.Token
}
