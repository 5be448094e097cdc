// rtnl-route - inspect and modify the routing tables.
//
// The subcommands mirror ip-route(8): list, get, get-prefix, add,
// replace, del. Multipath routes take repeated --nexthop flags in the
// ip(8) grammar: "via ADDR dev DEV weight N".
package main

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli"

	"grimm.is/rtnl"
	"grimm.is/rtnl/internal/logging"
)

func main() {
	logging.SetPrefix("rtnl-route")

	app := cli.NewApp()
	app.Name = "rtnl-route"
	app.Usage = "inspect and modify the routing tables"
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
		getPrefixCommand,
		addCommand,
		replaceCommand,
		delCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rtnl-route: %v\n", err)
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

var writeFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "via",
		Usage: "gateway address",
	},
	cli.StringFlag{
		Name:  "dev",
		Usage: "egress interface (name or index)",
	},
	cli.StringFlag{
		Name:  "src",
		Usage: "preferred source address",
	},
	cli.UintFlag{
		Name:  "metric",
		Usage: "route priority",
	},
	cli.UintFlag{
		Name:  "table",
		Usage: "routing table id (0 means the main table)",
	},
	cli.StringSliceFlag{
		Name:  "nexthop",
		Usage: "multipath leg: \"via ADDR dev DEV weight N\" (repeatable)",
	},
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "list routes across all tables",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "6",
			Usage: "list IPv6 routes instead of IPv4",
		},
	},
	Action: func(c *cli.Context) error {
		client := newClient(c)
		defer client.Close()

		var routes []rtnl.Route
		var err error
		if c.Bool("6") {
			routes, err = client.Route().IPv6List()
		} else {
			routes, err = client.Route().IPv4List()
		}
		if err != nil {
			return err
		}
		for _, r := range routes {
			printRoute(r)
		}
		return nil
	},
}

var getCommand = cli.Command{
	Name:      "get",
	Usage:     "look up the route a destination address would take",
	ArgsUsage: "<addr>",
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

		var route rtnl.Route
		if dst.Is4() {
			route, err = client.Route().IPv4Get(dst)
		} else {
			route, err = client.Route().IPv6Get(dst)
		}
		if err != nil {
			return err
		}
		printRoute(route)
		return nil
	},
}

var getPrefixCommand = cli.Command{
	Name:      "get-prefix",
	Usage:     "look up the route with exactly the given destination prefix",
	ArgsUsage: "<prefix>",
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return errors.New("missing destination prefix")
		}
		prefix, err := netip.ParsePrefix(c.Args().First())
		if err != nil {
			return fmt.Errorf("bad prefix %q: %w", c.Args().First(), err)
		}
		client := newClient(c)
		defer client.Close()

		var route rtnl.Route
		if prefix.Addr().Is4() {
			route, err = client.Route().IPv4GetByPrefix(prefix)
		} else {
			route, err = client.Route().IPv6GetByPrefix(prefix)
		}
		if err != nil {
			return err
		}
		printRoute(route)
		return nil
	},
}

var addCommand = cli.Command{
	Name:      "add",
	Usage:     "add a route (fails if the destination is held)",
	ArgsUsage: "<prefix>",
	Flags:     writeFlags,
	Action: func(c *cli.Context) error {
		route, client, err := writeArgs(c)
		if err != nil {
			return err
		}
		defer client.Close()
		if route.Dst.Addr().Is4() {
			return client.Route().IPv4Add(route)
		}
		return client.Route().IPv6Add(route)
	},
}

var replaceCommand = cli.Command{
	Name:      "replace",
	Usage:     "add or overwrite a route",
	ArgsUsage: "<prefix>",
	Flags:     writeFlags,
	Action: func(c *cli.Context) error {
		route, client, err := writeArgs(c)
		if err != nil {
			return err
		}
		defer client.Close()
		if route.Dst.Addr().Is4() {
			return client.Route().IPv4Replace(route)
		}
		return client.Route().IPv6Replace(route)
	},
}

var delCommand = cli.Command{
	Name:      "del",
	Usage:     "delete a route",
	ArgsUsage: "<prefix>",
	Flags:     writeFlags,
	Action: func(c *cli.Context) error {
		route, client, err := writeArgs(c)
		if err != nil {
			return err
		}
		defer client.Close()
		if route.Dst.Addr().Is4() {
			return client.Route().IPv4Delete(route)
		}
		return client.Route().IPv6Delete(route)
	},
}

// writeArgs assembles the route shared by add, replace and del. The
// caller owns the returned client.
func writeArgs(c *cli.Context) (rtnl.Route, *rtnl.Client, error) {
	if !c.Args().Present() {
		return rtnl.Route{}, nil, errors.New("missing destination prefix")
	}
	prefix, err := netip.ParsePrefix(c.Args().First())
	if err != nil {
		return rtnl.Route{}, nil, fmt.Errorf("bad prefix %q: %w", c.Args().First(), err)
	}
	route := rtnl.Route{
		Dst:    prefix,
		Metric: uint32(c.Uint("metric")),
		Table:  uint32(c.Uint("table")),
	}
	if via := c.String("via"); via != "" {
		if route.Gateway, err = netip.ParseAddr(via); err != nil {
			return rtnl.Route{}, nil, fmt.Errorf("bad gateway %q: %w", via, err)
		}
	}
	if src := c.String("src"); src != "" {
		if route.Source, err = netip.ParseAddr(src); err != nil {
			return rtnl.Route{}, nil, fmt.Errorf("bad source %q: %w", src, err)
		}
	}

	client := newClient(c)
	if dev := c.String("dev"); dev != "" {
		if route.IfIndex, err = resolveIndex(client, dev); err != nil {
			client.Close()
			return rtnl.Route{}, nil, err
		}
	}
	for _, s := range c.StringSlice("nexthop") {
		hop, err := parseNextHop(client, s)
		if err != nil {
			client.Close()
			return rtnl.Route{}, nil, err
		}
		route.NextHops = append(route.NextHops, hop)
	}
	return route, client, nil
}

// parseNextHop reads one --nexthop value: keyword/value pairs from the
// ip(8) grammar.
func parseNextHop(client *rtnl.Client, s string) (rtnl.NextHop, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields)%2 != 0 {
		return rtnl.NextHop{}, fmt.Errorf("bad nexthop %q", s)
	}
	var hop rtnl.NextHop
	for i := 0; i < len(fields); i += 2 {
		key, val := fields[i], fields[i+1]
		switch key {
		case "via":
			addr, err := netip.ParseAddr(val)
			if err != nil {
				return rtnl.NextHop{}, fmt.Errorf("bad nexthop gateway %q: %w", val, err)
			}
			hop.Gateway = addr
		case "dev":
			index, err := resolveIndex(client, val)
			if err != nil {
				return rtnl.NextHop{}, err
			}
			hop.IfIndex = index
		case "weight":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return rtnl.NextHop{}, fmt.Errorf("bad nexthop weight %q: %w", val, err)
			}
			hop.Weight = uint32(n)
		default:
			return rtnl.NextHop{}, fmt.Errorf("unknown nexthop keyword %q", key)
		}
	}
	return hop, nil
}

func printRoute(r rtnl.Route) {
	fmt.Print(r.Dst)
	if r.Gateway.IsValid() {
		fmt.Printf(" via %s", r.Gateway)
	}
	if r.IfIndex != 0 {
		fmt.Printf(" dev %d", r.IfIndex)
	}
	if r.Source.IsValid() {
		fmt.Printf(" src %s", r.Source)
	}
	if r.Metric != 0 {
		fmt.Printf(" metric %d", r.Metric)
	}
	if r.Table != 0 {
		fmt.Printf(" table %d", r.Table)
	}
	fmt.Println()
	for _, hop := range r.NextHops {
		fmt.Print("    nexthop")
		if hop.Gateway.IsValid() {
			fmt.Printf(" via %s", hop.Gateway)
		}
		if hop.IfIndex != 0 {
			fmt.Printf(" dev %d", hop.IfIndex)
		}
		fmt.Printf(" weight %d\n", hop.Weight)
	}
}
