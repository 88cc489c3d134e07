// Package mqtt publishes SiteReport session lifecycle events to an MQTT broker.
//
// Other services (report generators, the attachment service) subscribe to
// these events to drop any per-user state they cache when a session is
// revoked. The client is publish-only.
//
//	SiteReport Core → MQTT Broker → interested services
//
// Features:
//   - Auto-reconnect with exponential backoff
//   - Last Will and Testament (LWT) on {prefix}/system/status
//   - Retained online/offline status messages
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().SessionEvent("u-123", "logout")
//	err = client.Publish(topic, payload, 1, false)
//
// TLS should be enabled in production (cfg.Broker.TLS=true). Payloads
// carry user and token ids only, never tokens.
package mqtt
