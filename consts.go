package rtnl

// Kernel rtnetlink ABI values this package writes on the wire or matches
// in dump results. x/sys/unix defines most of these for Linux only, so
// local copies keep the package compiling on other platforms.

// Address families (AF_*).
const (
	familyAll = 0
	familyV4  = 2
	familyV6  = 10
)

// Interface address attribute types (IFA_*).
const (
	ifaAddress   = 1
	ifaLocal     = 2
	ifaBroadcast = 4
	ifaMulticast = 7
)

// Link attribute types (IFLA_*).
const (
	iflaAddress  = 1
	iflaIfname   = 3
	iflaMTU      = 4
	iflaLink     = 5
	iflaLinkinfo = 18
)

// Nested IFLA_LINKINFO attribute types (IFLA_INFO_*).
const (
	iflaInfoKind = 1
	iflaInfoData = 2
)

// GRE tunnel attribute types (IFLA_GRE_*), shared by gre, gretap,
// ip6gre and ip6gretap.
const (
	iflaGreLink       = 1
	iflaGreIkey       = 4
	iflaGreOkey       = 5
	iflaGreLocal      = 6
	iflaGreRemote     = 7
	iflaGreTTL        = 8
	iflaGreTos        = 9
	iflaGrePmtudisc   = 10
	iflaGreEncapLimit = 11
	iflaGreFlowinfo   = 12
	iflaGreIgnoreDf   = 19
)

// IP tunnel attribute types (IFLA_IPTUN_*), shared by ipip and ip6tnl.
const (
	iflaIptunLink       = 1
	iflaIptunLocal      = 2
	iflaIptunRemote     = 3
	iflaIptunTTL        = 4
	iflaIptunTos        = 5
	iflaIptunEncapLimit = 6
	iflaIptunFlowinfo   = 7
	iflaIptunPmtudisc   = 10
)

// VLAN attribute types (IFLA_VLAN_*).
const (
	iflaVlanID = 1
)

// Route types (RTN_*) the route dumps filter on.
const (
	rtnLocal     = 2
	rtnBroadcast = 3
)
