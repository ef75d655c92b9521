package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/attaboy/tower/internal/auth"
	"github.com/attaboy/tower/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	realm := flag.String("realm", string(auth.RealmService), "token realm: service or admin")
	subject := flag.String("sub", "", "client name the token is issued to")
	role := flag.String("role", auth.RoleViewer, "admin role: viewer, operator or superadmin")
	flag.Parse()

	token, err := mint(auth.Realm(*realm), *subject, *role)
	if err != nil {
		logger.Error("mint token failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func mint(realm auth.Realm, subject, role string) (string, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid config: %w", err)
	}
	if realm == auth.RealmService {
		role = ""
	} else if !auth.ValidRole(role) {
		return "", fmt.Errorf("unknown role %q", role)
	}
	mgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTServiceExpiry, cfg.JWTAdminExpiry)
	return mgr.GenerateToken(realm, subject, role)
}
