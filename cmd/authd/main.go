package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"moss.dev/internal/httpapi"
	"moss.dev/internal/ids"
	"moss.dev/internal/oauth"
	"moss.dev/internal/obs"
	"moss.dev/internal/rbac"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("MOSS_AUTH_SECRET")
	if secret == "" {
		log.Fatal("MOSS_AUTH_SECRET is required")
	}

	var db *sql.DB
	var oauthStore oauth.Store
	var rbacStore rbac.Store
	if dsn := os.Getenv("MOSS_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		oauthStore = oauth.NewPGStore(db)
		rbacStore = rbac.NewPGStore(db)
	} else {
		log.Print("MOSS_PG_DSN not set, using in-memory stores")
		oauthStore = oauth.NewMemoryStore()
		rbacStore = rbac.NewMemoryStore()
	}

	var codecOpts []oauth.CodecOption
	if issuer := os.Getenv("MOSS_ISSUER"); issuer != "" {
		codecOpts = append(codecOpts, oauth.WithCodecIssuer(issuer))
	}
	codec, err := oauth.NewCodec([]byte(secret), codecOpts...)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}
	authServer, err := oauth.NewServer(oauthStore, codec)
	if err != nil {
		log.Fatalf("oauth server: %v", err)
	}

	resolver, err := rbac.NewResolver(rbacStore)
	if err != nil {
		log.Fatalf("rbac resolver: %v", err)
	}
	rbacService, err := rbac.NewService(rbacStore, resolver)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}

	ctx := context.Background()
	if err := seedSuperAdmin(ctx, rbacStore); err != nil {
		log.Fatalf("seed super_admin role: %v", err)
	}
	if err := seedClient(ctx, oauthStore); err != nil {
		log.Fatalf("seed client: %v", err)
	}

	api := httpapi.New(authServer, rbacService, httpapi.ReadyProbe{DB: db}, version)

	addr := os.Getenv("MOSS_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting moss-authd %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// seedSuperAdmin makes sure the built-in super_admin role exists.
func seedSuperAdmin(ctx context.Context, store rbac.Store) error {
	roles := store.Roles(ctx)
	_, err := roles.FindRoleByName(ctx, rbac.SuperAdminRoleName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, rbac.ErrNotFound) {
		return err
	}
	return roles.CreateRole(ctx, &rbac.Role{
		ID:          ids.New(),
		Name:        rbac.SuperAdminRoleName,
		Description: "full access to every object type",
		System:      true,
	})
}

// seedClient registers a bootstrap OAuth client when MOSS_SEED_CLIENT_ID is
// set. Without at least one client the token endpoint has nothing to serve.
func seedClient(ctx context.Context, store oauth.Store) error {
	clientID := os.Getenv("MOSS_SEED_CLIENT_ID")
	if clientID == "" {
		return nil
	}
	clients := store.Clients(ctx)
	if _, err := clients.FindClient(ctx, clientID); err == nil {
		return nil
	} else if !errors.Is(err, oauth.ErrNotFound) {
		return err
	}

	c := oauth.Client{
		ID:            ids.New(),
		ClientID:      clientID,
		Name:          "bootstrap client",
		AllowedScopes: oauth.Scopes(),
		Type:          oauth.ClientPublic,
		Active:        true,
	}
	if uri := os.Getenv("MOSS_SEED_REDIRECT_URI"); uri != "" {
		c.RedirectURIs = []string{uri}
	}
	if secret := os.Getenv("MOSS_SEED_CLIENT_SECRET"); secret != "" {
		hash, err := oauth.HashClientSecret(secret)
		if err != nil {
			return err
		}
		c.Type = oauth.ClientConfidential
		c.SecretHash = hash
	}
	return clients.CreateClient(ctx, &c)
}
