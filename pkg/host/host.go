package host

import (
	"context"
	"fmt"
	"io"
	"time"

	"fwagent/pkg/protocol"
)

// Updater drives the update protocol against a device-resident agent.
// The device must implement io.ReadWriter for communication.
type Updater struct {
	device io.ReadWriter
	config Config
}

// New creates a new Updater with the given device and options.
//
// Example:
//
//	conn, _ := net.Dial("tcp", "device:4120")
//	up := host.New(conn,
//	    host.WithProgressCallback(progressFunc),
//	    host.WithChunkSize(256),
//	)
func New(device io.ReadWriter, opts ...Option) *Updater {
	if device == nil {
		panic("device cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Updater{
		device: device,
		config: cfg,
	}
}

// GetInfo queries the device info record.
func (u *Updater) GetInfo(ctx context.Context) (*protocol.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := u.device.Write(protocol.EncodeGetInfoCmd()); err != nil {
		return nil, fmt.Errorf("send get-info: %w", err)
	}

	if err := u.readAck(protocol.CmdGetInfo); err != nil {
		return nil, err
	}

	rec := make([]byte, protocol.InfoRecordSize)
	if _, err := io.ReadFull(u.device, rec); err != nil {
		return nil, fmt.Errorf("read info record: %w", err)
	}

	info, err := protocol.ParseDeviceInfo(rec)
	if err != nil {
		return nil, err
	}

	u.config.Logger.Debug("device info: rev %d, max cmd %d, firmware %d.%d",
		info.MaxRev, info.MaxCmd, info.FirmwareMajor, info.FirmwareMinor)
	return info, nil
}

// Update streams a sealed image to the device and waits for the verification
// result. The image length must be a multiple of protocol.ImageLenMultiple;
// use protocol.SealImage to pad a raw payload and append its checksum.
//
// The operation can be cancelled via context between chunks; the device side
// recovers on its next transport reset.
func (u *Updater) Update(ctx context.Context, image []byte) error {
	if len(image)%protocol.ImageLenMultiple != 0 {
		return fmt.Errorf("image length %d is not a multiple of %d", len(image), protocol.ImageLenMultiple)
	}

	start := time.Now()
	u.reportProgress(Progress{Phase: PhaseArming, TotalBytes: len(image)})

	frame, err := protocol.EncodeUpdateCmd(uint32(len(image)))
	if err != nil {
		return err
	}
	if _, err := u.device.Write(frame); err != nil {
		return fmt.Errorf("send update command: %w", err)
	}

	// The ack arrives only after the device finished erasing.
	if err := u.readAck(protocol.CmdUpdate); err != nil {
		return err
	}
	u.config.Logger.Info("update armed: %d bytes", len(image))

	for off := 0; off < len(image); off += u.config.ChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := off + u.config.ChunkSize
		if end > len(image) {
			end = len(image)
		}
		if _, err := u.device.Write(image[off:end]); err != nil {
			return fmt.Errorf("send image bytes at %d: %w", off, err)
		}

		u.reportProgress(Progress{
			Phase:        PhaseTransferring,
			BytesWritten: end,
			TotalBytes:   len(image),
			Percentage:   float64(end) / float64(len(image)) * 100,
			ElapsedTime:  time.Since(start),
		})
	}

	u.reportProgress(Progress{
		Phase:        PhaseVerifying,
		BytesWritten: len(image),
		TotalBytes:   len(image),
		Percentage:   100,
		ElapsedTime:  time.Since(start),
	})

	result := make([]byte, 1)
	if _, err := io.ReadFull(u.device, result); err != nil {
		return fmt.Errorf("read update result: %w", err)
	}
	if r := protocol.Result(result[0]); r != protocol.ResultOK {
		return &VerificationError{Result: r}
	}

	u.reportProgress(Progress{
		Phase:        PhaseComplete,
		BytesWritten: len(image),
		TotalBytes:   len(image),
		Percentage:   100,
		ElapsedTime:  time.Since(start),
	})
	u.config.Logger.Info("update complete in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// readAck reads and validates the 2-byte acknowledgement for cmd.
func (u *Updater) readAck(cmd byte) error {
	hdr := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(u.device, hdr); err != nil {
		return fmt.Errorf("read acknowledgement: %w", err)
	}

	echoed, st, err := protocol.ParseAck(hdr)
	if err != nil {
		return err
	}
	if echoed != cmd {
		return &AckMismatchError{Sent: cmd, Echoed: echoed}
	}
	if st != protocol.StatusOK {
		return &CommandRejectedError{Cmd: cmd, Status: st}
	}
	return nil
}

func (u *Updater) reportProgress(p Progress) {
	if u.config.ProgressCallback != nil {
		u.config.ProgressCallback(p)
	}
}
