package idgen

import (
	"errors"
	"net"
)

func lower16BitPrivateIP() (uint16, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0, err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip := ipnet.IP.To4()
		if ip != nil && isPrivateIPv4(ip) {
			return uint16(ip[2])<<8 + uint16(ip[3]), nil
		}
	}
	return 0, errors.New("no private ip address")
}

func isPrivateIPv4(ip net.IP) bool {
	return ip[0] == 10 || ip[0] == 172 && (ip[1] >= 16 && ip[1] < 32) || ip[0] == 192 && ip[1] == 168
}
