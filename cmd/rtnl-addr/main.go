// rtnl-addr - inspect and modify interface IP addresses.
//
// The subcommands mirror ip-address(8): list, add, del. Interfaces are
// addressed by name or by numeric index; addresses are given in CIDR
// notation.
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
	logging.SetPrefix("rtnl-addr")

	app := cli.NewApp()
	app.Name = "rtnl-addr"
	app.Usage = "inspect and modify interface IP addresses"
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
		addCommand,
		delCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rtnl-addr: %v\n", err)
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

var listCommand = cli.Command{
	Name:      "list",
	Usage:     "list addresses, optionally restricted to one interface",
	ArgsUsage: "[dev]",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "4",
			Usage: "list IPv4 addresses only",
		},
		cli.BoolFlag{
			Name:  "6",
			Usage: "list IPv6 addresses only",
		},
	},
	Action: func(c *cli.Context) error {
		client := newClient(c)
		defer client.Close()

		var index uint32
		if c.Args().Present() {
			var err error
			if index, err = resolveIndex(client, c.Args().First()); err != nil {
				return err
			}
		}

		// Neither family flag means both families.
		v4, v6 := c.Bool("4"), c.Bool("6")
		if !v4 && !v6 {
			v4, v6 = true, true
		}
		if v4 {
			addrs, err := client.Address().IPv4List(index)
			if err != nil {
				return err
			}
			for _, addr := range addrs {
				fmt.Printf("inet %s\n", addr)
			}
		}
		if v6 {
			addrs, err := client.Address().IPv6List(index)
			if err != nil {
				return err
			}
			for _, addr := range addrs {
				fmt.Printf("inet6 %s\n", addr)
			}
		}
		return nil
	},
}

var addCommand = cli.Command{
	Name:      "add",
	Usage:     "add an address to an interface",
	ArgsUsage: "<prefix> <dev>",
	Action: func(c *cli.Context) error {
		prefix, index, client, err := addrArgs(c)
		if err != nil {
			return err
		}
		defer client.Close()
		if prefix.Addr().Is4() {
			return client.Address().IPv4Set(index, prefix)
		}
		return client.Address().IPv6Set(index, prefix)
	},
}

var delCommand = cli.Command{
	Name:      "del",
	Usage:     "delete an address from an interface",
	ArgsUsage: "<prefix> <dev>",
	Action: func(c *cli.Context) error {
		prefix, index, client, err := addrArgs(c)
		if err != nil {
			return err
		}
		defer client.Close()
		if prefix.Addr().Is4() {
			return client.Address().IPv4Delete(index, prefix)
		}
		return client.Address().IPv6Delete(index, prefix)
	},
}

// addrArgs parses the shared "<prefix> <dev>" argument pair. The caller
// owns the returned client.
func addrArgs(c *cli.Context) (netip.Prefix, uint32, *rtnl.Client, error) {
	if len(c.Args()) < 2 {
		return netip.Prefix{}, 0, nil, errors.New("usage: <prefix> <dev>")
	}
	prefix, err := netip.ParsePrefix(c.Args().First())
	if err != nil {
		return netip.Prefix{}, 0, nil, fmt.Errorf("bad prefix %q: %w", c.Args().First(), err)
	}
	client := newClient(c)
	index, err := resolveIndex(client, c.Args().Get(1))
	if err != nil {
		client.Close()
		return netip.Prefix{}, 0, nil, err
	}
	return prefix, index, client, nil
}
