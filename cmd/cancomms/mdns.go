package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsServiceType = "_cancomms._tcp"

// startMDNS registers the listen service via mDNS and returns a cleanup function.
func startMDNS(ctx context.Context, cfg *appConfig, addr net.Addr) (func(), error) {
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("cancomms-%s", host)
	}
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("mdns: not a TCP address: %v", addr)
	}
	meta := []string{
		"backend=" + cfg.backend,
		"interface=" + cfg.canIf,
		"version=" + version,
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", tcpAddr.Port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	var once sync.Once
	stop := func() { once.Do(svc.Shutdown) }
	go func() {
		<-ctx.Done()
		stop()
	}()
	return func() { stop(); time.Sleep(50 * time.Millisecond) }, nil
}
