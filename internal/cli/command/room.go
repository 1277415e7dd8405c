package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/relaygate/internal/cli/output"
	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/pkg/relayclient"
)

// RoomCommand returns the room subcommand group.
func RoomCommand() *cli.Command {
	return &cli.Command{
		Name:  "room",
		Usage: "Inspect and manage the room registry",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List live rooms",
				Action:  roomList,
			},
			{
				Name:      "resolve",
				Usage:     "Show the node hosting a room",
				ArgsUsage: "ROOM",
				Action:    roomResolve,
			},
			{
				Name:      "upsert",
				Usage:     "Announce or refresh a room",
				ArgsUsage: "ROOM",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "node", Required: true, Usage: "node id hosting the room"},
					&cli.StringFlag{Name: "url", Usage: "public url of the node"},
					&cli.IntFlag{Name: "current", Usage: "current occupancy"},
					&cli.IntFlag{Name: "max", Usage: "capacity (0 for unlimited)"},
					&cli.BoolFlag{Name: "password", Usage: "room is password protected"},
					&cli.DurationFlag{Name: "ttl", Usage: "record lifetime (server default when unset)"},
					&cli.BoolFlag{Name: "keepalive", Usage: "keep refreshing until interrupted"},
					&cli.DurationFlag{Name: "interval", Value: domain.DefaultRoomRefreshInterval, Usage: "refresh interval with --keepalive"},
				},
				Action: roomUpsert,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Remove a room",
				ArgsUsage: "ROOM",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "node", Usage: "only delete while this node owns the room"},
				},
				Action: roomDelete,
			},
		},
	}
}

// roomTable renders rooms with occupancy folded into one column.
type roomTable []relayclient.Room

func (rooms roomTable) Table(wide bool) *output.Table {
	t := &output.Table{Headers: []string{"ROOM", "NODE", "OCCUPANCY", "PASSWORD", "EXPIRES"}}
	if wide {
		t.Headers = append(t.Headers, "URL", "CREATED", "REFRESHED")
	}
	for _, r := range rooms {
		row := []string{r.RoomName, r.NodeID, occupancy(r), yesNo(r.HasPassword), r.ExpiresAt.Local().Format(time.DateTime)}
		if wide {
			row = append(row, dash(r.URL), r.CreatedAt.Local().Format(time.DateTime), r.RefreshedAt.Local().Format(time.DateTime))
		}
		t.AddRow(row...)
	}
	return t
}

func occupancy(r relayclient.Room) string {
	if r.Max == 0 {
		return strconv.Itoa(r.Current)
	}
	s := fmt.Sprintf("%d/%d", r.Current, r.Max)
	if r.Full() {
		s += " full"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func roomArg(c *cli.Context) (string, error) {
	name := strings.TrimSpace(c.Args().First())
	if name == "" {
		return "", errors.New("room name required")
	}
	return name, nil
}

func roomList(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	rooms, err := client.ListRooms(c.Context)
	if err != nil {
		return err
	}
	return render(c, roomTable(rooms))
}

func roomResolve(c *cli.Context) error {
	name, err := roomArg(c)
	if err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	room, err := client.ResolveRoom(c.Context, name)
	if err != nil {
		if relayclient.IsNotFound(err) {
			return fmt.Errorf("room %q not found", name)
		}
		return err
	}
	return render(c, roomTable{*room})
}

func roomUpsert(c *cli.Context) error {
	name, err := roomArg(c)
	if err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}

	up := relayclient.RoomUpsert{
		RoomName:    name,
		NodeID:      c.String("node"),
		URL:         c.String("url"),
		Current:     c.Int("current"),
		Max:         c.Int("max"),
		HasPassword: c.Bool("password"),
		TTL:         c.Duration("ttl"),
	}
	if c.Bool("keepalive") {
		interval := c.Duration("interval")
		if interval <= 0 {
			return errors.New("--interval must be positive")
		}
		if up.TTL > 0 && interval >= up.TTL {
			return fmt.Errorf("--interval (%s) must be shorter than --ttl (%s)", interval, up.TTL)
		}
		return keepAlive(c, client, up, interval)
	}

	room, err := client.UpsertRoom(c.Context, up)
	if err != nil {
		return err
	}
	return render(c, roomTable{*room})
}

// keepAlive re-announces the room every interval until the context ends.
// Transient failures are reported and retried on the next tick. A room
// taken over by another node stops the loop instead of being taken back.
func keepAlive(c *cli.Context, client *relayclient.Client, up relayclient.RoomUpsert, interval time.Duration) error {
	room, err := client.UpsertRoom(c.Context, up)
	if err != nil {
		return err
	}
	if err := render(c, roomTable{*room}); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.Context.Done():
			return nil
		case <-ticker.C:
		}

		cur, err := client.ResolveRoom(c.Context, up.RoomName)
		switch {
		case err == nil && cur.NodeID != up.NodeID:
			return fmt.Errorf("room %q is now hosted by node %s", up.RoomName, cur.NodeID)
		case err != nil && !relayclient.IsNotFound(err):
			if c.Context.Err() != nil {
				return nil
			}
			fmt.Fprintf(c.App.ErrWriter, "refresh %s failed: %v\n", up.RoomName, err)
			continue
		}

		room, err := client.UpsertRoom(c.Context, up)
		if err != nil {
			if c.Context.Err() != nil {
				return nil
			}
			fmt.Fprintf(c.App.ErrWriter, "refresh %s failed: %v\n", up.RoomName, err)
			continue
		}
		fmt.Fprintf(c.App.ErrWriter, "refreshed %s until %s\n", room.RoomName, room.ExpiresAt.Local().Format(time.TimeOnly))
	}
}

func roomDelete(c *cli.Context) error {
	name, err := roomArg(c)
	if err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	if err := client.DeleteRoom(c.Context, name, c.String("node")); err != nil {
		if relayclient.IsNotFound(err) {
			return fmt.Errorf("room %q not found", name)
		}
		return err
	}
	fmt.Fprintf(c.App.Writer, "room %s deleted\n", name)
	return nil
}
