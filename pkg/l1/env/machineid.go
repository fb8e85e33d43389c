// Package env provides host environment facts used to name devices.
package env

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/denisbrodbeck/machineid"
)

// AppID keys the protected machine ID so it doesn't leak the raw host ID.
const AppID = "vcplink"

// idLen is the length of device IDs derived from the machine ID.
const idLen = 12

// MachineID retrieves the unique ID identifying the machine.
func MachineID() (string, error) {
	return machineid.ProtectedID(AppID)
}

// DeviceID derives a short stable device ID from the machine ID and the
// endpoint the device is attached to, so two devices on one host get
// different IDs.
func DeviceID(endpoint string) (string, error) {
	id, err := MachineID()
	if err != nil {
		return "", err
	}
	return deriveID(id, endpoint), nil
}

func deriveID(machineID, endpoint string) string {
	sum := sha256.Sum256([]byte(machineID + "\x00" + endpoint))
	return hex.EncodeToString(sum[:])[:idLen]
}
