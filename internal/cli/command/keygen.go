package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/pkg/crypto/sign"
)

// KeyInfo describes a generated signing key.
type KeyInfo struct {
	File      string `json:"file"`
	PublicKey string `json:"public_key"`
}

// KeygenCommand returns the keygen command.
func KeygenCommand() *cli.Command {
	return &cli.Command{
		Name:      "keygen",
		Usage:     "Generate the hub's registration signing key",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Usage:    "Private key file to create (must not exist)",
				Required: true,
			},
		},
		Action: keygen,
	}
}

func keygen(c *cli.Context) error {
	pub, priv, err := sign.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	path := c.String("out")
	if err := sign.WriteKeyFile(path, priv); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return render(c, KeyInfo{File: path, PublicKey: sign.EncodePublicKey(pub)})
}
