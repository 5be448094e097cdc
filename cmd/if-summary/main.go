// if-summary - print every interface with its link-layer address, MTU,
// addresses and the routes egressing through it. Exercises four
// subsystems over one shared connection.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"grimm.is/rtnl"
	"grimm.is/rtnl/internal/logging"
)

func main() {
	logging.SetPrefix("if-summary")

	app := cli.NewApp()
	app.Name = "if-summary"
	app.Usage = "summarize all network interfaces"
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
	app.Action = summarize

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "if-summary: %v\n", err)
		os.Exit(1)
	}
}

func summarize(c *cli.Context) error {
	var opts []rtnl.Option
	if ns := c.String("netns"); ns != "" {
		opts = append(opts, rtnl.WithNamespace(ns))
	}
	if path := c.String("netns-path"); path != "" {
		opts = append(opts, rtnl.WithNamespacePath(path))
	}
	client := rtnl.New(opts...)
	defer client.Close()

	interfaces, err := client.Link().List()
	if err != nil {
		return err
	}
	// One table walk serves every interface section.
	v4Routes, err := client.Route().IPv4List()
	if err != nil {
		return err
	}
	v6Routes, err := client.Route().IPv6List()
	if err != nil {
		return err
	}

	for _, itf := range interfaces {
		fmt.Printf("%d: %s", itf.Index, itf.Name)
		if mtu, err := client.Link().MTU(itf.Index); err == nil {
			fmt.Printf(" mtu %d", mtu)
		}
		fmt.Println()

		mac, err := client.Link().MACAddr(itf.Index)
		switch {
		case err == nil:
			fmt.Printf("    link/ether %s\n", mac)
		case errors.Is(err, rtnl.ErrNotFound):
			// No link-layer address on this interface.
		default:
			return err
		}

		v4, err := client.Address().IPv4List(itf.Index)
		if err != nil {
			return err
		}
		for _, addr := range v4 {
			fmt.Printf("    inet %s\n", addr)
		}
		v6, err := client.Address().IPv6List(itf.Index)
		if err != nil {
			return err
		}
		for _, addr := range v6 {
			fmt.Printf("    inet6 %s\n", addr)
		}

		for _, r := range v4Routes {
			if egresses(r, itf.Index) {
				fmt.Printf("    route %s\n", routeLine(r))
			}
		}
		for _, r := range v6Routes {
			if egresses(r, itf.Index) {
				fmt.Printf("    route6 %s\n", routeLine(r))
			}
		}
	}
	return nil
}

// egresses reports whether the route leaves through the interface,
// directly or via a multipath leg.
func egresses(r rtnl.Route, index uint32) bool {
	if r.IfIndex == index {
		return true
	}
	for _, hop := range r.NextHops {
		if hop.IfIndex == index {
			return true
		}
	}
	return false
}

func routeLine(r rtnl.Route) string {
	line := r.Dst.String()
	if r.Gateway.IsValid() {
		line += " via " + r.Gateway.String()
	}
	if r.Metric != 0 {
		line += fmt.Sprintf(" metric %d", r.Metric)
	}
	return line
}
