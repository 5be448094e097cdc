// rtnl-link - inspect and modify network interfaces.
//
// The subcommands mirror ip-link(8): list, show, set-state, set-promisc,
// set-arp, set-mtu, get-mtu, set-mac, rename. Interfaces are addressed
// by name or by numeric index.
package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/urfave/cli"

	"grimm.is/rtnl"
	"grimm.is/rtnl/internal/logging"
)

func main() {
	logging.SetPrefix("rtnl-link")

	app := cli.NewApp()
	app.Name = "rtnl-link"
	app.Usage = "inspect and modify network interfaces"
	app.Flags = namespaceFlags
	app.Commands = []cli.Command{
		listCommand,
		showCommand,
		setStateCommand,
		setPromiscCommand,
		setARPCommand,
		setMTUCommand,
		getMTUCommand,
		setMACCommand,
		renameCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rtnl-link: %v\n", err)
		os.Exit(1)
	}
}

var namespaceFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "netns",
		Usage: "run against the named network namespace",
	},
	cli.StringFlag{
		Name:  "netns-path",
		Usage: "run against the network namespace at `PATH`",
	},
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

// resolveIndex accepts a numeric interface index or an interface name.
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
	Name:  "list",
	Usage: "list all network interfaces",
	Action: func(c *cli.Context) error {
		client := newClient(c)
		defer client.Close()

		interfaces, err := client.Link().List()
		if err != nil {
			return err
		}
		for _, itf := range interfaces {
			fmt.Printf("%d: %s\n", itf.Index, itf.Name)
		}
		return nil
	},
}

var showCommand = cli.Command{
	Name:      "show",
	Usage:     "show one interface with its MTU and link-layer address",
	ArgsUsage: "<dev>",
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return errors.New("missing interface")
		}
		client := newClient(c)
		defer client.Close()

		index, err := resolveIndex(client, c.Args().First())
		if err != nil {
			return err
		}
		itf, err := client.Link().Get(index)
		if err != nil {
			return err
		}
		fmt.Printf("%d: %s", itf.Index, itf.Name)
		if mtu, err := client.Link().MTU(index); err == nil {
			fmt.Printf(" mtu %d", mtu)
		}
		fmt.Println()
		mac, err := client.Link().MACAddr(index)
		switch {
		case err == nil:
			fmt.Printf("    link/ether %s\n", mac)
		case errors.Is(err, rtnl.ErrNotFound):
			// No link-layer address (for example loopback or tun).
		default:
			return err
		}
		return nil
	},
}

var setStateCommand = cli.Command{
	Name:      "set-state",
	Usage:     "bring an interface administratively up or down",
	ArgsUsage: "<dev> up|down",
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 2 {
			return errors.New("usage: set-state <dev> up|down")
		}
		up, err := parseOnOff(c.Args().Get(1), "up", "down")
		if err != nil {
			return err
		}
		client := newClient(c)
		defer client.Close()

		index, err := resolveIndex(client, c.Args().First())
		if err != nil {
			return err
		}
		return client.Link().SetAdminState(index, up)
	},
}

var setPromiscCommand = cli.Command{
	Name:      "set-promisc",
	Usage:     "switch promiscuous mode on or off",
	ArgsUsage: "<dev> on|off",
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 2 {
			return errors.New("usage: set-promisc <dev> on|off")
		}
		enable, err := parseOnOff(c.Args().Get(1), "on", "off")
		if err != nil {
			return err
		}
		client := newClient(c)
		defer client.Close()

		index, err := resolveIndex(client, c.Args().First())
		if err != nil {
			return err
		}
		return client.Link().SetPromiscuous(index, enable)
	},
}

var setARPCommand = cli.Command{
	Name:      "set-arp",
	Usage:     "switch ARP on or off",
	ArgsUsage: "<dev> on|off",
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 2 {
			return errors.New("usage: set-arp <dev> on|off")
		}
		enable, err := parseOnOff(c.Args().Get(1), "on", "off")
		if err != nil {
			return err
		}
		client := newClient(c)
		defer client.Close()

		index, err := resolveIndex(client, c.Args().First())
		if err != nil {
			return err
		}
		return client.Link().SetARP(index, enable)
	},
}

var setMTUCommand = cli.Command{
	Name:      "set-mtu",
	Usage:     "set the MTU of an interface",
	ArgsUsage: "<dev> <mtu>",
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 2 {
			return errors.New("usage: set-mtu <dev> <mtu>")
		}
		mtu, err := strconv.ParseUint(c.Args().Get(1), 10, 32)
		if err != nil {
			return fmt.Errorf("bad MTU %q: %w", c.Args().Get(1), err)
		}
		client := newClient(c)
		defer client.Close()

		index, err := resolveIndex(client, c.Args().First())
		if err != nil {
			return err
		}
		return client.Link().SetMTU(index, uint32(mtu))
	},
}

var getMTUCommand = cli.Command{
	Name:      "get-mtu",
	Usage:     "print the MTU of an interface",
	ArgsUsage: "<dev>",
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return errors.New("missing interface")
		}
		client := newClient(c)
		defer client.Close()

		index, err := resolveIndex(client, c.Args().First())
		if err != nil {
			return err
		}
		mtu, err := client.Link().MTU(index)
		if err != nil {
			return err
		}
		fmt.Println(mtu)
		return nil
	},
}

var setMACCommand = cli.Command{
	Name:      "set-mac",
	Usage:     "set the link-layer address of an interface",
	ArgsUsage: "<dev> <lladdr>",
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 2 {
			return errors.New("usage: set-mac <dev> <lladdr>")
		}
		mac, err := parseMAC(c.Args().Get(1))
		if err != nil {
			return err
		}
		client := newClient(c)
		defer client.Close()

		index, err := resolveIndex(client, c.Args().First())
		if err != nil {
			return err
		}
		return client.Link().SetMACAddr(index, mac)
	},
}

var renameCommand = cli.Command{
	Name:      "rename",
	Usage:     "rename an interface",
	ArgsUsage: "<dev> <newname>",
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 2 {
			return errors.New("usage: rename <dev> <newname>")
		}
		client := newClient(c)
		defer client.Close()

		index, err := resolveIndex(client, c.Args().First())
		if err != nil {
			return err
		}
		return client.Link().Rename(index, c.Args().Get(1))
	},
}

func parseOnOff(arg, on, off string) (bool, error) {
	switch arg {
	case on:
		return true, nil
	case off:
		return false, nil
	}
	return false, fmt.Errorf("expected %q or %q, got %q", on, off, arg)
}

func parseMAC(s string) (rtnl.MacAddr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return rtnl.MacAddr{}, err
	}
	if len(hw) != 6 {
		return rtnl.MacAddr{}, fmt.Errorf("%q is not a 6-byte link-layer address", s)
	}
	var mac rtnl.MacAddr
	copy(mac[:], hw)
	return mac, nil
}
