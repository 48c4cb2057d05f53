package main

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/jackpal/gateway"
	"github.com/mdp/qrterminal/v3"

	"lanbox/internal/config"
)

// printBanner logs the LAN URL and, if enabled, draws it as a QR code so a
// phone on the same network can open it.
func printBanner(cfg config.Config) {
	ip, err := lanIP()
	if err != nil {
		log.Printf("msg=lan_ip_unknown err=%v", err)
		return
	}
	url := fmt.Sprintf("http://%s:%d/files", ip, cfg.Port)
	log.Printf("LAN address: %s (send header %s)", url, config.APIKeyHeader)
	if !cfg.ShowQR {
		return
	}
	qrterminal.GenerateWithConfig(url, qrterminal.Config{
		Level:          qrterminal.M,
		Writer:         os.Stdout,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		QuietZone:      1,
	})
}

// lanIP returns the local IPv4 address on the subnet of the default gateway.
func lanIP() (net.IP, error) {
	gw, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("discover gateway: %w", err)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			v4 := ipnet.IP.To4()
			if v4 == nil || v4.IsLoopback() || !v4.IsGlobalUnicast() {
				continue
			}
			if ipnet.Contains(gw) {
				return v4, nil
			}
		}
	}
	return nil, fmt.Errorf("no local IPv4 address on gateway subnet %s", gw)
}
