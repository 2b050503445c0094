package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/cli/connection"
)

// StatusInfo combines the hub's health and session counters.
type StatusInfo struct {
	Server      string `json:"server"`
	Healthy     bool   `json:"healthy"`
	Connections int    `json:"connections"`
	Blocked     int    `json:"blocked"`
	Pending     int    `json:"pending"`
	Live        int    `json:"live"`
	Capacity    int    `json:"capacity"`
	Occupied    int    `json:"occupied"`
}

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show hub health and session counters from the admin endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "admin",
				Aliases: []string{"s"},
				Usage:   "Admin endpoint address",
				EnvVars: []string{"AUTHMESH_ADMIN"},
				Value:   "127.0.0.1:9080",
			},
		},
		Action: status,
	}
}

func status(c *cli.Context) error {
	client := connection.NewAdminClient(c.String("admin"))
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	info := StatusInfo{Server: client.BaseURL()}
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	info.Healthy = true

	counts, err := client.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	info.Connections = counts.Connections
	info.Blocked = counts.Blocked
	info.Pending = counts.Pending
	info.Live = counts.Live
	info.Capacity = counts.Capacity
	info.Occupied = counts.Occupied
	return render(c, info)
}
