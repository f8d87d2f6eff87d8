// Command fwagentd runs a simulated device-resident update agent: an
// in-memory flash device behind the update protocol, served over TCP, QUIC
// or a serial port. Useful for exercising host-side tooling without
// hardware.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fwagent/pkg/agent"
	"fwagent/pkg/channel"
	"fwagent/pkg/flash"
	"fwagent/pkg/logger"
)

func main() {
	var (
		tcpAddr    = flag.String("tcp", "", "listen for the host on this TCP address (e.g. :4120)")
		quicAddr   = flag.String("quic", "", "listen for the host on this QUIC address")
		serialPort = flag.String("serial", "", "serve the host over this serial port")
		baudRate   = flag.Int("baud", 115200, "serial baud rate")
		flashSize  = flag.Uint("flash-size", 57344, "simulated flash region size in bytes")
		pageSize   = flag.Uint("page-size", 1024, "simulated flash page size in bytes")
		fwMajor    = flag.Uint("fw-major", 1, "reported firmware major version")
		fwMinor    = flag.Uint("fw-minor", 0, "reported firmware minor version")
		strapped   = flag.Bool("strap", false, "report the hardware strap flag")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := logger.LevelInfo
	if *debug {
		level = logger.LevelDebug
	}
	log := logger.NewPrefixLogger(level, "fwagentd")

	if err := run(log, config{
		tcpAddr:    *tcpAddr,
		quicAddr:   *quicAddr,
		serialPort: *serialPort,
		baudRate:   *baudRate,
		flashSize:  uint32(*flashSize),
		pageSize:   uint32(*pageSize),
		fwMajor:    byte(*fwMajor),
		fwMinor:    byte(*fwMinor),
		strapped:   *strapped,
	}); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

type config struct {
	tcpAddr    string
	quicAddr   string
	serialPort string
	baudRate   int
	flashSize  uint32
	pageSize   uint32
	fwMajor    byte
	fwMinor    byte
	strapped   bool
}

func run(log logger.Logger, cfg config) error {
	dev, err := flash.NewMemDevice(cfg.flashSize, cfg.pageSize, 2)
	if err != nil {
		return fmt.Errorf("flash device: %w", err)
	}
	region, err := flash.NewRegion(dev, 0, cfg.flashSize)
	if err != nil {
		return fmt.Errorf("flash region: %w", err)
	}

	ep, err := openEndpoint(cfg)
	if err != nil {
		return err
	}
	defer ep.Close()

	sess, err := agent.New(ep, region, agent.Config{
		FirmwareMajor: cfg.fwMajor,
		FirmwareMinor: cfg.fwMinor,
		Strapped:      cfg.strapped,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	log.Info("update agent ready: %d bytes of flash, firmware %d.%d",
		cfg.flashSize, cfg.fwMajor, cfg.fwMinor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = sess.Run(ctx)
	if errors.Is(err, context.Canceled) {
		stats := sess.Statistics()
		log.Info("shutting down (rx %d bytes, tx %d bytes, %d connects)",
			stats.BytesReceived, stats.BytesSent, stats.Connects)
		return nil
	}
	return err
}

func openEndpoint(cfg config) (channel.Endpoint, error) {
	configured := 0
	for _, set := range []bool{cfg.tcpAddr != "", cfg.quicAddr != "", cfg.serialPort != ""} {
		if set {
			configured++
		}
	}
	if configured != 1 {
		return nil, fmt.Errorf("exactly one of -tcp, -quic or -serial is required")
	}

	switch {
	case cfg.tcpAddr != "":
		return channel.NewTCPEndpoint(channel.TCPEndpointConfig{
			Address:  cfg.tcpAddr,
			IsServer: true,
		})
	case cfg.quicAddr != "":
		return channel.NewQUICEndpoint(channel.QUICEndpointConfig{
			Address:  cfg.quicAddr,
			IsServer: true,
		})
	default:
		return channel.NewSerialEndpoint(channel.SerialConfig{
			Port:     cfg.serialPort,
			BaudRate: cfg.baudRate,
		})
	}
}
