// Package protocol implements the update agent's control-channel wire format.
//
// # Frame Format
//
// Commands and acknowledgements travel over a raw byte stream. A command
// frame is self-delimited by its own second byte:
//
//	Command:         [CMD][LEN][PAYLOAD...]        LEN = total frame length
//	Acknowledgement: [CMD][STATUS][PAYLOAD...]     CMD echoes the request
//	Update result:   [RESULT]                      sent once, after the image
//
// All multi-byte fields are little-endian. Two commands exist: CmdGetInfo
// returns the fixed-size device info record, CmdUpdate arms a full-image
// update of the declared length.
//
// # Status vs. Result
//
// The acknowledgement byte carries two different meanings on the wire:
// a protocol Status (ok / bad command) on the immediate 2-byte ack, and a
// verification Result (ok / checksum failed) on the single byte closing an
// update. They are distinct types here and only share a wire position.
//
// # Image Checksum
//
// Images are verified with CRC-16-CCITT, seed 0xFFFF, computed over the
// whole written region. A valid image carries its own checksum at the end so
// that the CRC of the complete image folds to zero; SealImage produces that
// layout from a raw payload.
package protocol
