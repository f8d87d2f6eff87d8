package host

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"fwagent/pkg/agent"
	"fwagent/pkg/channel"
	"fwagent/pkg/flash"
	"fwagent/pkg/protocol"
)

// scriptedDevice returns canned response bytes and records everything the
// host writes.
type scriptedDevice struct {
	rx bytes.Buffer
	tx bytes.Buffer
}

func (d *scriptedDevice) Read(p []byte) (int, error)  { return d.rx.Read(p) }
func (d *scriptedDevice) Write(p []byte) (int, error) { return d.tx.Write(p) }

func TestGetInfoParsesRecord(t *testing.T) {
	dev := &scriptedDevice{}
	dev.rx.Write(protocol.EncodeInfoAck(&protocol.DeviceInfo{
		MaxRev:        0,
		MaxCmd:        protocol.MaxCommand,
		FirmwareMajor: 1,
		FirmwareMinor: 4,
		Flags:         protocol.InfoFlagStrapped,
	}))

	info, err := New(dev).GetInfo(context.Background())
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.FirmwareMajor != 1 || info.FirmwareMinor != 4 {
		t.Errorf("firmware = %d.%d, want 1.4", info.FirmwareMajor, info.FirmwareMinor)
	}
	if !info.Strapped() {
		t.Error("strapped flag not set")
	}
	if !bytes.Equal(dev.tx.Bytes(), protocol.EncodeGetInfoCmd()) {
		t.Errorf("host sent %v", dev.tx.Bytes())
	}
}

func TestGetInfoRejected(t *testing.T) {
	dev := &scriptedDevice{}
	dev.rx.Write(protocol.EncodeAck(protocol.CmdGetInfo, protocol.StatusBadCommand))

	_, err := New(dev).GetInfo(context.Background())
	var rejected *CommandRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want CommandRejectedError", err)
	}
	if rejected.Cmd != protocol.CmdGetInfo {
		t.Errorf("rejected.Cmd = %d", rejected.Cmd)
	}
}

func TestGetInfoAckMismatch(t *testing.T) {
	dev := &scriptedDevice{}
	dev.rx.Write(protocol.EncodeAck(protocol.CmdUpdate, protocol.StatusOK))

	_, err := New(dev).GetInfo(context.Background())
	var mismatch *AckMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want AckMismatchError", err)
	}
}

func TestUpdateRejectsRaggedImage(t *testing.T) {
	dev := &scriptedDevice{}

	err := New(dev).Update(context.Background(), make([]byte, 5))
	if err == nil {
		t.Fatal("accepted image of 5 bytes")
	}
	if dev.tx.Len() != 0 {
		t.Error("host wrote to the device before validating the image")
	}
}

func TestUpdateVerificationFailure(t *testing.T) {
	dev := &scriptedDevice{}
	dev.rx.Write(protocol.EncodeAck(protocol.CmdUpdate, protocol.StatusOK))
	dev.rx.Write(protocol.EncodeResult(protocol.ResultChecksumFailed))

	image := protocol.SealImage([]byte{1, 2, 3, 4, 5, 6})
	err := New(dev).Update(context.Background(), image)

	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want VerificationError", err)
	}

	// The host sent the command frame followed by the whole image.
	frame, _ := protocol.EncodeUpdateCmd(uint32(len(image)))
	want := append(frame, image...)
	if !bytes.Equal(dev.tx.Bytes(), want) {
		t.Errorf("host sent %v, want %v", dev.tx.Bytes(), want)
	}
}

func TestUpdateReportsProgressPhases(t *testing.T) {
	dev := &scriptedDevice{}
	dev.rx.Write(protocol.EncodeAck(protocol.CmdUpdate, protocol.StatusOK))
	dev.rx.Write(protocol.EncodeResult(protocol.ResultOK))

	var phases []string
	up := New(dev,
		WithChunkSize(4),
		WithProgressCallback(func(p Progress) {
			phases = append(phases, p.Phase)
		}),
	)

	image := protocol.SealImage([]byte{1, 2, 3, 4, 5, 6})
	if err := up.Update(context.Background(), image); err != nil {
		t.Fatalf("Update: %v", err)
	}

	want := []string{PhaseArming, PhaseTransferring, PhaseTransferring, PhaseVerifying, PhaseComplete}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

func TestUpdateHonorsContextCancel(t *testing.T) {
	dev := &scriptedDevice{}
	dev.rx.Write(protocol.EncodeAck(protocol.CmdUpdate, protocol.StatusOK))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	image := protocol.SealImage(make([]byte, 1022))
	err := New(dev, WithChunkSize(64)).Update(ctx, image)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestEndToEndUpdateOverPipe(t *testing.T) {
	deviceSide, hostSide := net.Pipe()
	defer hostSide.Close()

	mem, err := flash.NewMemDevice(65536, 1024, 2)
	if err != nil {
		t.Fatalf("NewMemDevice: %v", err)
	}
	region, err := flash.NewRegion(mem, 0, 57344)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}

	ep := channel.NewStreamEndpoint(deviceSide)
	defer ep.Close()

	sess, err := agent.New(ep, region, agent.Config{
		FirmwareMajor: 2,
		FirmwareMinor: 1,
		PollInterval:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go sess.Run(ctx)

	up := New(hostSide, WithChunkSize(300))

	info, err := up.GetInfo(ctx)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.FirmwareMajor != 2 || info.FirmwareMinor != 1 {
		t.Fatalf("firmware = %d.%d, want 2.1", info.FirmwareMajor, info.FirmwareMinor)
	}

	payload := make([]byte, 4094)
	for i := range payload {
		payload[i] = byte(i ^ (i >> 5))
	}
	image := protocol.SealImage(payload)

	if err := up.Update(ctx, image); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got := make([]byte, len(image))
	if err := mem.ReadAt(0, got); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, image) {
		t.Fatal("flash contents differ from the sent image")
	}
}
