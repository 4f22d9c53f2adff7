package world

// FlightControllerAddr returns the UDP port and MAVLink-style system
// identifier the external flight-controller process for drone id is
// launched with (spec.md §6: "udp_port = 14550 + 10*i, system_id =
// i + 1"). The formula is strict, required for protocol uniqueness
// with the in-host multiplex, and is the only contract the kernel
// keeps with that out-of-process collaborator (spec.md §1).
func FlightControllerAddr(id int) (udpPort, systemID int) {
	return 14550 + 10*id, id + 1
}
