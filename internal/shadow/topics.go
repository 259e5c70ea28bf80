package shadow

import "fmt"

// topicPrefix is the root of the vendor's shadow topic hierarchy.
// The full grammar is things/{deviceId}/shadow/{get|update}[/...suffix].
const topicPrefix = "things"

// Topics provides builders for the shadow protocol's MQTT topics.
// Using these helpers keeps topic naming consistent with the wire contract.
//
//	topics := shadow.Topics{}
//	topics.Get("dev-1")  // "things/dev-1/shadow/get"
type Topics struct{}

// Get returns the get-request topic for a device.
//
// Example: things/dev-1/shadow/get
func (Topics) Get(deviceID string) string {
	return fmt.Sprintf("%s/%s/shadow/get", topicPrefix, deviceID)
}

// GetAccepted returns the topic carrying successful get responses.
//
// Example: things/dev-1/shadow/get/accepted
func (Topics) GetAccepted(deviceID string) string {
	return fmt.Sprintf("%s/%s/shadow/get/accepted", topicPrefix, deviceID)
}

// GetRejected returns the topic carrying get rejections.
//
// Example: things/dev-1/shadow/get/rejected
func (Topics) GetRejected(deviceID string) string {
	return fmt.Sprintf("%s/%s/shadow/get/rejected", topicPrefix, deviceID)
}

// Update returns the update-request topic for a device.
//
// Example: things/dev-1/shadow/update
func (Topics) Update(deviceID string) string {
	return fmt.Sprintf("%s/%s/shadow/update", topicPrefix, deviceID)
}

// UpdateAccepted returns the topic carrying successful update responses.
//
// Example: things/dev-1/shadow/update/accepted
func (Topics) UpdateAccepted(deviceID string) string {
	return fmt.Sprintf("%s/%s/shadow/update/accepted", topicPrefix, deviceID)
}

// UpdateRejected returns the topic carrying update rejections.
//
// Example: things/dev-1/shadow/update/rejected
func (Topics) UpdateRejected(deviceID string) string {
	return fmt.Sprintf("%s/%s/shadow/update/rejected", topicPrefix, deviceID)
}

// UpdateDelta returns the topic carrying device/cloud-initiated deltas.
//
// Example: things/dev-1/shadow/update/delta
func (Topics) UpdateDelta(deviceID string) string {
	return fmt.Sprintf("%s/%s/shadow/update/delta", topicPrefix, deviceID)
}

// Subscriptions returns the five inbound topics a connected session
// subscribes to for a device: both response topics per operation plus the
// unsolicited delta topic. Request topics are publish-only.
func (t Topics) Subscriptions(deviceID string) []string {
	return []string{
		t.GetAccepted(deviceID),
		t.GetRejected(deviceID),
		t.UpdateAccepted(deviceID),
		t.UpdateRejected(deviceID),
		t.UpdateDelta(deviceID),
	}
}
