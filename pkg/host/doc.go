// Package host implements the host side of the update protocol: an Updater
// that talks to a device-resident update agent over any io.ReadWriter,
// queries its info record and streams sealed firmware images with progress
// tracking.
package host
