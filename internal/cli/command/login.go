package command

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/cli/connection"
	"github.com/yndnr/authmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/authmesh-go/pkg/crypto/sign"
)

// LoginInfo is the outcome of a login as printed by the CLI.
type LoginInfo struct {
	Identity  uint64 `json:"identity"`
	Group     uint8  `json:"group"`
	Signed    bool   `json:"signature_verified"`
	KeyDigest string `json:"session_key_prefix"`
}

// LoginCommand returns the login command.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Authenticate an identity against a hub",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "hub", Usage: "Hub address", EnvVars: []string{"AUTHMESH_HUB"}, Value: "127.0.0.1:9003"},
			&cli.Uint64Flag{Name: "identity", Usage: "Identity number", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Password", EnvVars: []string{"AUTHMESH_PASSWORD"}},
			&cli.StringFlag{Name: "public-key", Usage: "Hub public key (ed25519:<hex>) to verify the registration"},
			&cli.BoolFlag{Name: "tls", Usage: "Connect with TLS"},
			&cli.StringFlag{Name: "ca-file", Usage: "Extra CA bundle for TLS"},
			&cli.StringFlag{Name: "server-name", Usage: "TLS server name override"},
			&cli.DurationFlag{Name: "timeout", Usage: "Per-exchange timeout", Value: 10 * time.Second},
		},
		Action: login,
	}
}

func login(c *cli.Context) error {
	password := c.String("password")
	if password == "" {
		return errors.New("password is required (--password or AUTHMESH_PASSWORD)")
	}

	var pub ed25519.PublicKey
	if s := c.String("public-key"); s != "" {
		var err error
		if pub, err = sign.DecodePublicKey(s); err != nil {
			return fmt.Errorf("public key: %w", err)
		}
	}

	opts := []connection.HubOption{connection.WithTimeout(c.Duration("timeout"))}
	if c.Bool("tls") || c.String("ca-file") != "" {
		tlsCfg, err := clientTLS(c.String("ca-file"), c.String("server-name"))
		if err != nil {
			return err
		}
		opts = append(opts, connection.WithTLS(tlsCfg))
	}

	ctx, cancel := context.WithTimeout(c.Context, 3*c.Duration("timeout"))
	defer cancel()

	client := connection.NewHubClient(c.String("hub"), opts...)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", c.String("hub"), err)
	}
	defer client.Close()
	verbosef(c, "connected to %s", c.String("hub"))

	res, err := client.Login(ctx, c.Uint64("identity"), []byte(password))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	info := LoginInfo{
		Identity:  res.Identity,
		Group:     res.Group,
		KeyDigest: hex.EncodeToString(res.SessionKey[:min(4, len(res.SessionKey))]),
	}
	if pub != nil {
		if err := sign.Verify(pub, res.Registration); err != nil {
			return fmt.Errorf("registration signature: %w", err)
		}
		info.Signed = true
	}
	return render(c, info)
}

func clientTLS(caFile, serverName string) (*tls.Config, error) {
	cfg, err := tlsroots.ClientConfig(caFile, serverName)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	return cfg, nil
}
