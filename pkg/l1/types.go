// Package l1 contains the host side of the link: what happens to messages
// after they leave the ingestion queue.
package l1

import "strings"

// DeviceType is the type segment used in topics of vcplink devices.
const DeviceType = "vcp"

// DeviceRef identifies a device attached through the link.
type DeviceRef struct {
	// Type is the device type.
	Type string
	// ID is unique ID of the device.
	ID string
}

// ParseDeviceRef parses "type/id".
func ParseDeviceRef(name string) (ref DeviceRef, ok bool) {
	items := strings.Split(name, "/")
	if len(items) != 2 {
		return
	}
	ref = DeviceRef{Type: items[0], ID: items[1]}
	return ref, ref.IsValid()
}

// Name retrieves the name from ref.
func (r DeviceRef) Name() string {
	return r.Type + "/" + r.ID
}

// Topic builds a topic under the device name.
func (r DeviceRef) Topic(suffix string) string {
	return r.Name() + "/" + suffix
}

// IsValid indicates DeviceRef is valid.
func (r DeviceRef) IsValid() bool {
	return r.Type != "" && r.ID != ""
}

// Topic suffixes under a device.
const (
	TopicMsg   = "msg"
	TopicMeta  = "meta"
	TopicStats = "stats"
)

// DeviceMeta provides metadata for a device, published retained to the meta topic.
type DeviceMeta struct {
	Description string            `json:"description,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Online      bool              `json:"online"`
	Labels      map[string]string `json:"labels,omitempty"`
}
