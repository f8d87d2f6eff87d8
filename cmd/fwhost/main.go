// Command fwhost talks to a device running the update agent: it queries the
// info record and pushes firmware images. The raw image file is sealed
// before transfer so the device-side checksum folds to zero.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"go.bug.st/serial"

	"fwagent/pkg/host"
	"fwagent/pkg/logger"
	"fwagent/pkg/protocol"
)

func main() {
	var (
		tcpAddr    = flag.String("tcp", "", "connect to the device on this TCP address")
		serialPort = flag.String("serial", "", "connect to the device on this serial port")
		baudRate   = flag.Int("baud", 115200, "serial baud rate")
		info       = flag.Bool("info", false, "query and print the device info record")
		updateFile = flag.String("update", "", "send this firmware image file to the device")
		chunkSize  = flag.Int("chunk", 512, "transfer chunk size in bytes")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := logger.LevelInfo
	if *debug {
		level = logger.LevelDebug
	}
	log := logger.NewPrefixLogger(level, "fwhost")

	if !*info && *updateFile == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -info and/or -update <file>")
		flag.Usage()
		os.Exit(2)
	}

	device, err := openDevice(*tcpAddr, *serialPort, *baudRate)
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
	defer device.Close()

	up := host.New(device,
		host.WithLogger(log),
		host.WithChunkSize(*chunkSize),
		host.WithProgressCallback(printProgress),
	)

	ctx := context.Background()

	if *info {
		rec, err := up.GetInfo(ctx)
		if err != nil {
			log.Error("get-info: %v", err)
			os.Exit(1)
		}
		fmt.Printf("protocol revision: %d\n", rec.MaxRev)
		fmt.Printf("max command:       %d\n", rec.MaxCmd)
		fmt.Printf("firmware:          %d.%d\n", rec.FirmwareMajor, rec.FirmwareMinor)
		fmt.Printf("strapped:          %v\n", rec.Strapped())
	}

	if *updateFile != "" {
		payload, err := os.ReadFile(*updateFile)
		if err != nil {
			log.Error("read image: %v", err)
			os.Exit(1)
		}

		image := protocol.SealImage(payload)
		log.Info("sending %s: %d bytes sealed to %d", *updateFile, len(payload), len(image))

		if err := up.Update(ctx, image); err != nil {
			fmt.Println()
			log.Error("update: %v", err)
			os.Exit(1)
		}
		fmt.Println()
		log.Info("device reports the image verified clean")
	}
}

func openDevice(tcpAddr, serialPort string, baudRate int) (io.ReadWriteCloser, error) {
	switch {
	case tcpAddr != "" && serialPort != "":
		return nil, fmt.Errorf("pass only one of -tcp or -serial")
	case tcpAddr != "":
		conn, err := net.Dial("tcp", tcpAddr)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", tcpAddr, err)
		}
		return conn, nil
	case serialPort != "":
		mode := &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(serialPort, mode)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", serialPort, err)
		}
		return port, nil
	default:
		return nil, fmt.Errorf("one of -tcp or -serial is required")
	}
}

func printProgress(p host.Progress) {
	switch p.Phase {
	case host.PhaseTransferring:
		fmt.Printf("\r%s %5.1f%% (%d/%d bytes)", p.Phase, p.Percentage, p.BytesWritten, p.TotalBytes)
	default:
		fmt.Printf("\r%s%s", p.Phase, "                                ")
	}
}
