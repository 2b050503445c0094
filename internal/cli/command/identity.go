package command

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/storage"
	"github.com/yndnr/authmesh-go/pkg/crypto/srp"
)

// IdentityRow is one enrolled identity as shown by identity list.
type IdentityRow struct {
	Identity  uint64    `json:"identity"`
	Group     uint32    `json:"group"`
	Salt      []byte    `json:"salt"`
	Verifier  []byte    `json:"verifier" table:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func newIdentityRow(rec *domain.IdentityRecord) IdentityRow {
	row := IdentityRow{
		Identity: rec.Identity,
		Group:    rec.Group,
		Salt:     rec.Salt,
		Verifier: rec.Verifier,
	}
	if rec.CreatedAt > 0 {
		row.CreatedAt = time.UnixMilli(rec.CreatedAt).UTC()
	}
	return row
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "data-dir",
			Usage:    "Badger identity store directory",
			EnvVars:  []string{"AUTHMESH_STORAGE_DATA_DIR"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "encryption-key",
			Usage:   "Secret sealing records at rest (must match the hub)",
			EnvVars: []string{"AUTHMESH_STORAGE_ENCRYPTION_KEY"},
		},
	}
}

// IdentityCommand returns the identity subcommand group.
func IdentityCommand() *cli.Command {
	return &cli.Command{
		Name:    "identity",
		Aliases: []string{"id"},
		Usage:   "Manage identities in a badger identity store",
		Subcommands: []*cli.Command{
			{
				Name:  "enroll",
				Usage: "Derive a salt and verifier from a password and store them",
				Flags: append(storeFlags(),
					&cli.Uint64Flag{Name: "identity", Usage: "Identity number", Required: true},
					&cli.UintFlag{Name: "group", Usage: "Group stamped on registrations (0-255)", Value: uint(domain.GroupUnspecified)},
					&cli.StringFlag{Name: "password", Usage: "Password", EnvVars: []string{"AUTHMESH_PASSWORD"}},
					&cli.BoolFlag{Name: "overwrite", Usage: "Replace an existing record"},
				),
				Action: identityEnroll,
			},
			{
				Name:   "list",
				Usage:  "List enrolled identities",
				Flags:  storeFlags(),
				Action: identityList,
			},
			{
				Name:      "delete",
				Usage:     "Remove an identity",
				ArgsUsage: "<identity>",
				Flags:     storeFlags(),
				Action:    identityDelete,
			},
		},
	}
}

func openStore(c *cli.Context) (*storage.BadgerStore, error) {
	cfg := storage.DefaultBadgerConfig(c.String("data-dir"))
	cfg.GCInterval = 0
	if key := c.String("encryption-key"); key != "" {
		cfg.EncryptionKey = []byte(key)
	}
	logger := slog.New(slog.DiscardHandler)
	store, err := storage.NewBadgerStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}
	return store, nil
}

func identityEnroll(c *cli.Context) error {
	identity := c.Uint64("identity")
	password := c.String("password")
	if password == "" {
		return errors.New("password is required (--password or AUTHMESH_PASSWORD)")
	}
	group := c.Uint("group")
	if group > uint(domain.MaxGroup) {
		return fmt.Errorf("group %d out of range (0-%d)", group, domain.MaxGroup)
	}

	salt, err := srp.GenerateSalt()
	if err != nil {
		return err
	}
	verifier, err := srp.GenerateVerifier(identity, []byte(password), salt)
	if err != nil {
		return err
	}
	rec, err := domain.NewIdentityRecord(identity, salt, verifier, uint32(group))
	if err != nil {
		return err
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Put(c.Context, rec, c.Bool("overwrite")); err != nil {
		return fmt.Errorf("enroll %d: %w", identity, err)
	}
	verbosef(c, "enrolled identity %d in %s", identity, c.String("data-dir"))
	return render(c, newIdentityRow(rec))
}

func identityList(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	rows := make([]IdentityRow, 0)
	err = store.Scan(c.Context, func(rec *domain.IdentityRecord) bool {
		rows = append(rows, newIdentityRow(rec))
		return true
	})
	if err != nil {
		return fmt.Errorf("scan identities: %w", err)
	}
	return render(c, rows)
}

func identityDelete(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: identity delete <identity>")
	}
	identity, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid identity %q: %w", c.Args().First(), err)
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(c.Context, identity); err != nil {
		return fmt.Errorf("delete %d: %w", identity, err)
	}
	fmt.Fprintf(c.App.Writer, "identity %d deleted\n", identity)
	return nil
}
