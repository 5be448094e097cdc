// rtnl-tunnel - create, reconfigure and remove virtual interfaces.
//
// Supported kinds: gre, gretap, ip6gre, ip6gretap, ipip, ip6tnl, vlan.
// For the IPv6 kinds --ttl carries the hop limit and --tos the traffic
// class.
package main

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"

	"github.com/urfave/cli"

	"grimm.is/rtnl"
	"grimm.is/rtnl/internal/logging"
)

func main() {
	logging.SetPrefix("rtnl-tunnel")

	app := cli.NewApp()
	app.Name = "rtnl-tunnel"
	app.Usage = "create, reconfigure and remove virtual interfaces"
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
		createCommand,
		configureCommand,
		deleteCommand,
		resolveCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rtnl-tunnel: %v\n", err)
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

var kindFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "kind",
		Usage: "interface kind: gre, gretap, ip6gre, ip6gretap, ipip, ip6tnl, vlan",
	},
	cli.StringFlag{
		Name:  "local",
		Usage: "local tunnel endpoint address",
	},
	cli.StringFlag{
		Name:  "remote",
		Usage: "remote tunnel endpoint address",
	},
	cli.UintFlag{
		Name:  "ttl",
		Usage: "time to live (hop limit for the IPv6 kinds)",
	},
	cli.UintFlag{
		Name:  "tos",
		Usage: "type of service (traffic class for the IPv6 kinds)",
	},
	cli.UintFlag{
		Name:  "key",
		Usage: "GRE key, applied to both directions",
	},
	cli.UintFlag{
		Name:  "encap-limit",
		Usage: "encapsulation limit",
	},
	cli.UintFlag{
		Name:  "flow-label",
		Usage: "IPv6 flow label (ip6tnl only)",
	},
	cli.BoolFlag{
		Name:  "pmtudisc",
		Usage: "enable path MTU discovery",
	},
	cli.BoolFlag{
		Name:  "ignore-df",
		Usage: "ignore the DF bit on encapsulated packets (GRE only)",
	},
	cli.StringFlag{
		Name:  "link",
		Usage: "base interface (name or index); the VLAN parent",
	},
	cli.UintFlag{
		Name:  "vlan-id",
		Usage: "802.1Q VLAN id (vlan only)",
	},
}

var createCommand = cli.Command{
	Name:      "create",
	Usage:     "create a virtual interface",
	ArgsUsage: "<name>",
	Flags: append([]cli.Flag{
		cli.BoolFlag{
			Name:  "up",
			Usage: "bring the interface up on creation",
		},
	}, kindFlags...),
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return errors.New("missing interface name")
		}
		client := newClient(c)
		defer client.Close()

		kind, err := buildKind(client, c)
		if err != nil {
			return err
		}
		return client.VirtualInterface().Create(rtnl.VirtualInterfaceSpec{
			Name:    c.Args().First(),
			Kind:    kind,
			AdminUp: c.Bool("up"),
		})
	},
}

var configureCommand = cli.Command{
	Name:      "configure",
	Usage:     "reconfigure an existing virtual interface",
	ArgsUsage: "<dev>",
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:  "name",
			Usage: "rename the interface",
		},
		cli.BoolFlag{
			Name:  "up",
			Usage: "bring the interface up",
		},
		cli.BoolFlag{
			Name:  "down",
			Usage: "take the interface down",
		},
	}, kindFlags...),
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return errors.New("missing interface")
		}
		if c.Bool("up") && c.Bool("down") {
			return errors.New("--up and --down are mutually exclusive")
		}
		client := newClient(c)
		defer client.Close()

		index, err := resolveIndex(client, c.Args().First())
		if err != nil {
			return err
		}
		kind, err := buildKind(client, c)
		if err != nil {
			return err
		}
		update := rtnl.VirtualInterfaceUpdate{
			Index:   index,
			NewName: c.String("name"),
			Kind:    kind,
		}
		if c.Bool("up") {
			up := true
			update.AdminUp = &up
		}
		if c.Bool("down") {
			up := false
			update.AdminUp = &up
		}
		return client.VirtualInterface().Configure(update)
	},
}

var deleteCommand = cli.Command{
	Name:      "delete",
	Usage:     "delete a virtual interface by name or index",
	ArgsUsage: "<dev>",
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return errors.New("missing interface")
		}
		client := newClient(c)
		defer client.Close()

		arg := c.Args().First()
		if n, err := strconv.ParseUint(arg, 10, 32); err == nil {
			return client.VirtualInterface().Delete(uint32(n))
		}
		return client.VirtualInterface().DeleteByName(arg)
	},
}

var resolveCommand = cli.Command{
	Name:      "resolve",
	Usage:     "print the index of an interface",
	ArgsUsage: "<name>",
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return errors.New("missing interface name")
		}
		client := newClient(c)
		defer client.Close()

		index, err := client.VirtualInterface().IndexByName(c.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(index)
		return nil
	},
}

// buildKind assembles the kind parameter block from the shared flags.
// Optional wire fields are emitted only for flags the user actually set.
func buildKind(client *rtnl.Client, c *cli.Context) (rtnl.VirtualInterfaceKind, error) {
	var link uint32
	if dev := c.String("link"); dev != "" {
		var err error
		if link, err = resolveIndex(client, dev); err != nil {
			return nil, err
		}
	}

	kind := c.String("kind")
	switch kind {
	case "gre", "gretap", "ip6gre", "ip6gretap":
		cfg := rtnl.GREConfig{
			PMTUDisc: c.Bool("pmtudisc"),
			IgnoreDF: c.Bool("ignore-df"),
			Link:     link,
		}
		if err := parseEndpoints(c, &cfg.Local, &cfg.Remote); err != nil {
			return nil, err
		}
		if c.IsSet("ttl") {
			v := uint8(c.Uint("ttl"))
			cfg.TTL = &v
		}
		if c.IsSet("tos") {
			v := uint8(c.Uint("tos"))
			cfg.ToS = &v
		}
		if c.IsSet("key") {
			v := uint32(c.Uint("key"))
			cfg.Key = &v
		}
		if c.IsSet("encap-limit") {
			v := uint8(c.Uint("encap-limit"))
			cfg.EncapLimit = &v
		}
		switch kind {
		case "gre":
			return rtnl.GRETunnel{GREConfig: cfg}, nil
		case "gretap":
			return rtnl.GRETap{GREConfig: cfg}, nil
		case "ip6gre":
			return rtnl.GRE6Tunnel{GREConfig: cfg}, nil
		default:
			return rtnl.GRE6Tap{GREConfig: cfg}, nil
		}

	case "ipip":
		cfg := rtnl.IPIPConfig{
			PMTUDisc: c.Bool("pmtudisc"),
			Link:     link,
		}
		if err := parseEndpoints(c, &cfg.Local, &cfg.Remote); err != nil {
			return nil, err
		}
		if c.IsSet("ttl") {
			v := uint8(c.Uint("ttl"))
			cfg.TTL = &v
		}
		if c.IsSet("tos") {
			v := uint8(c.Uint("tos"))
			cfg.ToS = &v
		}
		if c.IsSet("encap-limit") {
			v := uint8(c.Uint("encap-limit"))
			cfg.EncapLimit = &v
		}
		return rtnl.IPIPTunnel{IPIPConfig: cfg}, nil

	case "ip6tnl":
		cfg := rtnl.IP6TunnelConfig{
			PMTUDisc: c.Bool("pmtudisc"),
			Link:     link,
		}
		if err := parseEndpoints(c, &cfg.Local, &cfg.Remote); err != nil {
			return nil, err
		}
		if c.IsSet("ttl") {
			v := uint8(c.Uint("ttl"))
			cfg.HopLimit = &v
		}
		if c.IsSet("tos") {
			v := uint8(c.Uint("tos"))
			cfg.TrafficClass = &v
		}
		if c.IsSet("flow-label") {
			v := uint32(c.Uint("flow-label"))
			cfg.FlowLabel = &v
		}
		if c.IsSet("encap-limit") {
			v := uint8(c.Uint("encap-limit"))
			cfg.EncapLimit = &v
		}
		return rtnl.IP6Tunnel{IP6TunnelConfig: cfg}, nil

	case "vlan":
		cfg := rtnl.VLANConfig{BaseIndex: link}
		if c.IsSet("vlan-id") {
			v := uint16(c.Uint("vlan-id"))
			cfg.VLANID = &v
		}
		return rtnl.VLAN{VLANConfig: cfg}, nil

	case "":
		return nil, errors.New("missing --kind")
	}
	return nil, fmt.Errorf("unknown kind %q", kind)
}

func parseEndpoints(c *cli.Context, local, remote *netip.Addr) error {
	var err error
	if s := c.String("local"); s != "" {
		if *local, err = netip.ParseAddr(s); err != nil {
			return fmt.Errorf("bad local address %q: %w", s, err)
		}
	}
	if s := c.String("remote"); s != "" {
		if *remote, err = netip.ParseAddr(s); err != nil {
			return fmt.Errorf("bad remote address %q: %w", s, err)
		}
	}
	return nil
}
