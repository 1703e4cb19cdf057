package simulate

const showVersion = `Hostname: vsrx01
Model: vsrx
Junos: 12.1X47-D15.4
JUNOS Software Release [12.1X47-D15.4]
`

const showChassisHardware = `Hardware inventory:
Item             Version  Part number  Serial number     Description
Chassis                                8e3f2a1c7d04      VSRX
Midplane
System IO
Routing Engine                                           VSRX-2CPU-4G memory
FPC 0                                                    Virtual FPC
  PIC 0                                                  Virtual GE
Power Supply 0
`

const showInterfacesTerse = `Interface               Admin Link Proto    Local                 Remote
ge-0/0/0                up    up
ge-0/0/0.0              up    up   inet     10.0.2.15/24
ge-0/0/1                up    up
ge-0/0/1.0              up    up   inet     192.168.56.10/24
gr-0/0/0                up    up
lo0                     up    up
lo0.16384               up    up   inet     127.0.0.1           --> 0/0
`

const showConfigurationSystem = `host-name vsrx01;
root-authentication {
    encrypted-password "$5$redacted"; ## SECRET-DATA
}
services {
    ssh;
    netconf {
        ssh;
    }
}
syslog {
    file messages {
        any any;
    }
}
`

const showConfigurationInterfaces = `ge-0/0/0 {
    unit 0 {
        family inet {
            dhcp;
        }
    }
}
ge-0/0/1 {
    unit 0 {
        family inet {
            address 192.168.56.10/24;
        }
    }
}
`

const showConfiguration = `## Last commit: 2026-10-18 21:14:03 UTC by admin
version 12.1X47-D15.4;
system {
    host-name vsrx01;
    services {
        ssh;
    }
}
interfaces {
    ge-0/0/1 {
        unit 0 {
            family inet {
                address 192.168.56.10/24;
            }
        }
    }
}
`

const showSystemUptime = `Current time: 2026-10-19 08:30:12 UTC
System booted: 2026-10-12 06:02:44 UTC (1w0d 02:27 ago)
Protocols started: 2026-10-12 06:04:10 UTC (1w0d 02:26 ago)
Last configured: 2026-10-18 21:14:03 UTC (11:16:09 ago) by admin
 8:30AM  up 7 days,  2:27, 1 user, load averages: 0.08, 0.05, 0.01
`

const showRouteSummary = `Autonomous system number: 64512
Router ID: 192.168.56.10

inet.0: 4 destinations, 4 routes (4 active, 0 holddown, 0 hidden)
              Direct:      2 routes,      2 active
               Local:      2 routes,      2 active
`

const showCLI = `CLI complete-on-space set to on
CLI idle-timeout disabled
CLI restart-on-upgrade set to on
CLI screen-length set to 24
CLI screen-width set to 80
CLI terminal is 'vt100'
CLI is operating in enhanced mode
CLI timestamp disabled
CLI working directory is '/cf/var/home/admin'
`

// DefaultTable 内置的 vSRX 应答
func DefaultTable() *Table {
	return NewTable(
		Fixture{Match: "show version", Output: showVersion},
		Fixture{Match: "show chassis hardware", Output: showChassisHardware},
		Fixture{Match: "show interfaces terse", Output: showInterfacesTerse},
		Fixture{Match: "show configuration", Output: showConfiguration},
		Fixture{Match: "show configuration system", Output: showConfigurationSystem},
		Fixture{Match: "show configuration interfaces", Output: showConfigurationInterfaces},
		Fixture{Match: "show system uptime", Output: showSystemUptime},
		Fixture{Match: "show route summary", Output: showRouteSummary},
		Fixture{Match: "show cli", Output: showCLI},
		Fixture{Match: "set cli screen-length", Output: "Screen length set to 0\n"},
		Fixture{Match: "set cli screen-width", Output: "Screen width set to 0\n"},
	)
}
