package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// AuthEventsMeasurement is the measurement holding auth telemetry.
const AuthEventsMeasurement = "auth_events"

// AuthEventPoint is one auth lifecycle event.
//
// AppID, Event, Outcome and Reason become tags (low cardinality). UserID,
// TokenID and Revoked are fields, since user and token ids would explode
// series cardinality as tags.
type AuthEventPoint struct {
	AppID   string
	Event   string
	Outcome string
	Reason  string
	UserID  string
	TokenID string
	Revoked int
	Time    time.Time
}

// WriteAuthEvent queues p for the next batch. Dropped silently after Close.
func (c *Client) WriteAuthEvent(p AuthEventPoint) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(authEventToPoint(p))
}

func authEventToPoint(p AuthEventPoint) *write.Point {
	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	pt := write.NewPointWithMeasurement(AuthEventsMeasurement).
		AddTag("event", p.Event).
		AddTag("outcome", p.Outcome).
		AddField("count", 1).
		SetTime(ts)

	if p.AppID != "" {
		pt.AddTag("app_id", p.AppID)
	}
	if p.Reason != "" {
		pt.AddTag("reason", p.Reason)
	}
	if p.UserID != "" {
		pt.AddField("user_id", p.UserID)
	}
	if p.TokenID != "" {
		pt.AddField("token_id", p.TokenID)
	}
	if p.Revoked > 0 {
		pt.AddField("revoked", p.Revoked)
	}
	return pt
}
