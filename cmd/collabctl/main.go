// Command collabctl is an operator tool for the collaboration service.
//
//	collabctl revoke -token <jwt> [-ttl 1h]     add a token to the Redis blacklist
//	collabctl dev-token -sub <id> [-ttl 1h]    mint an HS256 token for local testing
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/config"
	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
	"github.com/gogotex/gogotex/backend/collab-service/internal/sessions"
	"github.com/gogotex/gogotex/backend/collab-service/internal/tokens"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	switch os.Args[1] {
	case "revoke":
		err = revoke(cfg, os.Args[2:])
	case "dev-token":
		err = devToken(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: collabctl revoke -token <jwt> [-ttl 1h] | dev-token -sub <id> [-name n] [-email e] [-ttl 1h]")
}

func revoke(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	token := fs.String("token", "", "access token to revoke")
	ttl := fs.Duration("ttl", time.Hour, "how long to remember the revocation (the token's remaining lifetime)")
	_ = fs.Parse(args)
	if *token == "" {
		return fmt.Errorf("-token is required")
	}
	if cfg.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sessions.NewBlacklist(client).Revoke(ctx, *token, *ttl); err != nil {
		return err
	}
	logger.Infof("token revoked for %s", *ttl)
	return nil
}

func devToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("dev-token", flag.ExitOnError)
	sub := fs.String("sub", "", "subject (user id)")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	_ = fs.Parse(args)
	if *sub == "" {
		return fmt.Errorf("-sub is required")
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	tok, err := tokens.GenerateAccessToken(cfg, &models.User{Sub: *sub, Name: *name, Email: *email}, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
