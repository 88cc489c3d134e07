package mqtt

import "strings"

// DefaultTopicPrefix is used when the config leaves topic_prefix empty.
const DefaultTopicPrefix = "sitereport"

// Topics builds SiteReport MQTT topic names under a common prefix.
//
//	t := mqtt.NewTopics("sitereport")
//	t.SessionEvent("u-1", "logout") // "sitereport/auth/sessions/u-1/logout"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// SystemStatus is the retained online/offline topic.
//
// Example: sitereport/system/status
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// SessionEvent is the topic for one user's session lifecycle event.
//
// Example: sitereport/auth/sessions/u-123/revoke_all
//
// Both values are escaped with topicSegment so a crafted user ID cannot
// add levels or wildcards.
func (t Topics) SessionEvent(userID, eventType string) string {
	return t.prefix + "/auth/sessions/" + topicSegment(userID) + "/" + topicSegment(eventType)
}

// AllSessionEvents matches every session event for every user.
//
// Pattern: sitereport/auth/sessions/+/+
func (t Topics) AllSessionEvents() string {
	return t.prefix + "/auth/sessions/+/+"
}

// segmentReplacer maps characters that are special in MQTT topic names
// onto '_'.
var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_", "\x00", "_")

// topicSegment makes s safe to use as a single topic level.
func topicSegment(s string) string {
	if s == "" {
		return "_"
	}
	return segmentReplacer.Replace(strings.ToValidUTF8(s, "_"))
}
