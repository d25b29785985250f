package services

import (
	"net"
	"strconv"
)

// HostInterface describes one usable IPv4 interface on the dashboard
// host. The settings API exposes these so an operator can pick which
// address collectors should post telemetry to.
type HostInterface struct {
	Name      string `json:"name" example:"eth0"`
	IPAddress string `json:"ip_address" example:"10.10.0.5"`
	Subnet    string `json:"subnet" example:"10.10.0.0/24"`
	MAC       string `json:"mac" example:"b8:27:eb:4d:11:22"`
	Status    string `json:"status" example:"up"` // "up" or "down"
}

// InterfaceService enumerates the host's network interfaces.
type InterfaceService struct{}

// NewInterfaceService creates an InterfaceService instance.
func NewInterfaceService() *InterfaceService {
	return &InterfaceService{}
}

// ListNetworkInterfaces returns every non-loopback interface carrying an
// IPv4 address. IPv6-only interfaces are skipped.
func (s *InterfaceService) ListNetworkInterfaces() ([]HostInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]HostInterface, 0, len(ifaces))
	for i := range ifaces {
		nic := &ifaces[i]
		if nic.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := nic.Addrs()
		if err != nil {
			continue
		}

		var ip4, subnet string
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			v4 := ipNet.IP.To4()
			if v4 == nil {
				continue
			}
			ones, _ := ipNet.Mask.Size()
			ip4 = v4.String()
			subnet = v4.Mask(ipNet.Mask).String() + "/" + strconv.Itoa(ones)
			break
		}
		if ip4 == "" {
			continue
		}

		status := "down"
		if nic.Flags&net.FlagUp != 0 {
			status = "up"
		}

		out = append(out, HostInterface{
			Name:      nic.Name,
			IPAddress: ip4,
			Subnet:    subnet,
			MAC:       nic.HardwareAddr.String(),
			Status:    status,
		})
	}

	return out, nil
}
