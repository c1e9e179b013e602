package mqtt

import "fmt"

// Topic prefixes for the mesh provisioner.
//
// Daemon topics use the flat scheme graylogic/{category}/mesh/{id}, the same
// layout the other Gray Logic bridges use, so existing ACLs and tooling apply.
const (
	// TopicPrefix is the base for all Gray Logic topics.
	TopicPrefix = "graylogic"

	// TopicPrefixCore is the base for events consumed by Gray Logic Core.
	TopicPrefixCore = "graylogic/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// Protocol is the protocol segment for every mesh daemon topic.
	Protocol = "mesh"
)

// Event kinds published by the mesh daemon.
const (
	EventBeacon    = "beacon"
	EventNodeAdded = "node_added"
)

// Core event types published by the provisioner.
const (
	CoreEventNodeAdded      = "mesh_node_added"
	CoreEventNodeConfigured = "mesh_node_configured"
)

// Topics provides builders for mesh provisioner MQTT topics.
//
// Prefix replaces TopicPrefix as the root of the daemon topics so several
// provisioners can share one broker. Core and system topics are fixed.
//
//	topics := mqtt.Topics{}
//	req := topics.Request("3f1c...")
//	// Returns: "graylogic/request/mesh/3f1c..."
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return TopicPrefix
	}
	return t.Prefix
}

// Request returns the topic the provisioner publishes a daemon request on.
//
// Example: graylogic/request/mesh/9b2e4c7a-...
func (t Topics) Request(requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", t.root(), Protocol, requestID)
}

// Response returns the topic the daemon answers a request on.
//
// Example: graylogic/response/mesh/9b2e4c7a-...
func (t Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", t.root(), Protocol, requestID)
}

// Event returns the topic for an unsolicited daemon event.
//
// Example: graylogic/event/mesh/beacon
func (t Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s/%s", t.root(), Protocol, kind)
}

// Health returns the daemon health topic.
//
// Example: graylogic/health/mesh
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", t.root(), Protocol)
}

// CoreEvent returns the topic for an event consumed by Gray Logic Core.
//
// Example: graylogic/core/event/mesh_node_added
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// SystemStatus returns the provisioner's retained online/offline topic.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllResponses matches every daemon response.
//
// Pattern: graylogic/response/mesh/+
func (t Topics) AllResponses() string {
	return fmt.Sprintf("%s/response/%s/+", t.root(), Protocol)
}

// AllEvents matches every daemon event.
//
// Pattern: graylogic/event/mesh/+
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/%s/+", t.root(), Protocol)
}

// AllTopics returns a pattern matching all Gray Logic topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: graylogic/#
func (t Topics) AllTopics() string {
	return t.root() + "/#"
}
