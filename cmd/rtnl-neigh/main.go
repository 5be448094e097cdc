// rtnl-neigh - inspect and modify the neighbor (ARP/NDP) tables.
//
// The subcommands mirror ip-neighbour(8): list, get, add, change, del.
package main

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli"

	"grimm.is/rtnl"
	"grimm.is/rtnl/internal/logging"
)

func main() {
	logging.SetPrefix("rtnl-neigh")

	app := cli.NewApp()
	app.Name = "rtnl-neigh"
	app.Usage = "inspect and modify the neighbor tables"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "netns",
			Usage: "run against the named network namespace",
		},
		cli.StringFlag{
			Name:  "netns-path",
			Usage: "run against the network namespace at `PATH`",
		},
	}
	app.Commands = []cli.Command{
		listCommand,
		getCommand,
		addCommand,
		changeCommand,
		delCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rtnl-neigh: %v\n", err)
		os.Exit(1)
	}
}

func newClient(c *cli.Context) *rtnl.Client {
	var opts []rtnl.Option
	if ns := c.GlobalString("netns"); ns != "" {
		opts = append(opts, rtnl.WithNamespace(ns))
	}
	if path := c.GlobalString("netns-path"); path != "" {
		opts = append(opts, rtnl.WithNamespacePath(path))
	}
	return rtnl.New(opts...)
}

func resolveIndex(client *rtnl.Client, arg string) (uint32, error) {
	if n, err := strconv.ParseUint(arg, 10, 32); err == nil {
		return uint32(n), nil
	}
	itf, err := client.Link().GetByName(arg)
	if err != nil {
		return 0, fmt.Errorf("resolving %q: %w", arg, err)
	}
	return itf.Index, nil
}

var devFlag = cli.StringFlag{
	Name:  "dev",
	Usage: "restrict to the given interface (name or index)",
}

var writeFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "dev",
		Usage: "interface the entry lives on (name or index)",
	},
	cli.StringFlag{
		Name:  "lladdr",
		Usage: "link-layer address of the neighbor",
	},
	cli.StringFlag{
		Name:  "state",
		Usage: "cache state (permanent, reachable, stale, noarp, ...)",
	},
	cli.BoolFlag{
		Name:  "router",
		Usage: "mark the neighbor as a router",
	},
	cli.BoolFlag{
		Name:  "proxy",
		Usage: "mark the entry as a proxy entry",
	},
	cli.BoolFlag{
		Name:  "sticky",
		Usage: "pin the entry against learning updates",
	},
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "list neighbor entries, optionally restricted to one interface",
	Flags: []cli.Flag{devFlag},
	Action: func(c *cli.Context) error {
		client := newClient(c)
		defer client.Close()

		var index uint32
		if dev := c.String("dev"); dev != "" {
			var err error
			if index, err = resolveIndex(client, dev); err != nil {
				return err
			}
		}
		entries, err := client.Neighbor().List(index)
		if err != nil {
			return err
		}
		for _, e := range entries {
			printEntry(e)
		}
		return nil
	},
}

var getCommand = cli.Command{
	Name:      "get",
	Usage:     "look up a single neighbor entry by destination",
	ArgsUsage: "<addr>",
	Flags:     []cli.Flag{devFlag},
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return errors.New("missing destination address")
		}
		dst, err := netip.ParseAddr(c.Args().First())
		if err != nil {
			return fmt.Errorf("bad address %q: %w", c.Args().First(), err)
		}
		client := newClient(c)
		defer client.Close()

		var index uint32
		if dev := c.String("dev"); dev != "" {
			if index, err = resolveIndex(client, dev); err != nil {
				return err
			}
		}
		entry, err := client.Neighbor().Get(dst, index)
		if err != nil {
			return err
		}
		printEntry(entry)
		return nil
	},
}

var addCommand = cli.Command{
	Name:      "add",
	Usage:     "add a neighbor entry (fails if it exists)",
	ArgsUsage: "<addr>",
	Flags:     writeFlags,
	Action: func(c *cli.Context) error {
		entry, client, err := writeArgs(c)
		if err != nil {
			return err
		}
		defer client.Close()
		return client.Neighbor().Add(entry)
	},
}

var changeCommand = cli.Command{
	Name:      "change",
	Usage:     "add or overwrite a neighbor entry",
	ArgsUsage: "<addr>",
	Flags:     writeFlags,
	Action: func(c *cli.Context) error {
		entry, client, err := writeArgs(c)
		if err != nil {
			return err
		}
		defer client.Close()
		return client.Neighbor().Change(entry)
	},
}

var delCommand = cli.Command{
	Name:      "del",
	Usage:     "delete a neighbor entry",
	ArgsUsage: "<addr>",
	Flags:     []cli.Flag{devFlag},
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return errors.New("missing destination address")
		}
		dst, err := netip.ParseAddr(c.Args().First())
		if err != nil {
			return fmt.Errorf("bad address %q: %w", c.Args().First(), err)
		}
		client := newClient(c)
		defer client.Close()

		entry := rtnl.NeighborEntry{Dst: dst}
		if dev := c.String("dev"); dev != "" {
			if entry.IfIndex, err = resolveIndex(client, dev); err != nil {
				return err
			}
		}
		return client.Neighbor().Delete(entry)
	},
}

// writeArgs assembles the entry shared by add and change. The caller owns
// the returned client.
func writeArgs(c *cli.Context) (rtnl.NeighborEntry, *rtnl.Client, error) {
	if !c.Args().Present() {
		return rtnl.NeighborEntry{}, nil, errors.New("missing destination address")
	}
	dst, err := netip.ParseAddr(c.Args().First())
	if err != nil {
		return rtnl.NeighborEntry{}, nil, fmt.Errorf("bad address %q: %w", c.Args().First(), err)
	}
	entry := rtnl.NeighborEntry{Dst: dst}

	if lladdr := c.String("lladdr"); lladdr != "" {
		if entry.LLAddr, err = net.ParseMAC(lladdr); err != nil {
			return rtnl.NeighborEntry{}, nil, fmt.Errorf("bad lladdr %q: %w", lladdr, err)
		}
	}
	if entry.State, err = parseState(c.String("state")); err != nil {
		return rtnl.NeighborEntry{}, nil, err
	}
	if c.Bool("router") {
		entry.Flags |= rtnl.NeighborFlagRouter
	}
	if c.Bool("proxy") {
		entry.Flags |= rtnl.NeighborFlagProxy
	}
	if c.Bool("sticky") {
		entry.Flags |= rtnl.NeighborFlagSticky
	}

	client := newClient(c)
	if dev := c.String("dev"); dev != "" {
		if entry.IfIndex, err = resolveIndex(client, dev); err != nil {
			client.Close()
			return rtnl.NeighborEntry{}, nil, err
		}
	}
	return entry, client, nil
}

func parseState(s string) (rtnl.NeighborState, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return rtnl.NeighborStateNone, nil
	case "incomplete":
		return rtnl.NeighborStateIncomplete, nil
	case "reachable":
		return rtnl.NeighborStateReachable, nil
	case "stale":
		return rtnl.NeighborStateStale, nil
	case "delay":
		return rtnl.NeighborStateDelay, nil
	case "probe":
		return rtnl.NeighborStateProbe, nil
	case "failed":
		return rtnl.NeighborStateFailed, nil
	case "noarp":
		return rtnl.NeighborStateNoARP, nil
	case "permanent":
		return rtnl.NeighborStatePermanent, nil
	}
	return 0, fmt.Errorf("unknown neighbor state %q", s)
}

func printEntry(e rtnl.NeighborEntry) {
	fmt.Printf("%s dev %d", e.Dst, e.IfIndex)
	if len(e.LLAddr) > 0 {
		fmt.Printf(" lladdr %s", e.LLAddr)
	}
	if e.Flags != 0 {
		fmt.Printf(" %s", e.Flags)
	}
	fmt.Printf(" %s\n", e.State)
}
