package mqtt

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/oshokin/cave-device/internal/transport"
)

const (
	// methodsSubscription receives every direct method for this device.
	methodsSubscription = "$iothub/methods/POST/#"
	// methodsPrefix precedes the method name in request topics.
	methodsPrefix = "$iothub/methods/POST/"
	// requestIDKey is the query key carrying the request id.
	requestIDKey = "$rid"

	// Well-known user property keys for message metadata.
	propertyMessageID    = "$.mid"
	propertyCreationTime = "iothub-creation-time-utc"
	propertyContentEnc   = "$.ce"

	// telemetryQoS is at-least-once; the broker owns redelivery.
	telemetryQoS = 1
	// responseQoS is at-most-once; a lost response is not retried.
	responseQoS = 0
)

// telemetryTopic is the device-to-cloud topic of deviceID.
func telemetryTopic(deviceID string) string {
	return "devices/" + deviceID + "/messages/events/"
}

// responseTopic is the topic a direct method response is published to.
func responseTopic(status int, requestID string) string {
	return "$iothub/methods/res/" + strconv.Itoa(status) + "/?" + requestIDKey + "=" + url.QueryEscape(requestID)
}

// parseMethodTopic extracts the method name and request id from a direct
// method request topic. It reports false for any other topic.
func parseMethodTopic(topic string) (method, requestID string, ok bool) {
	rest, found := strings.CutPrefix(topic, methodsPrefix)
	if !found {
		return "", "", false
	}

	method, query, _ := strings.Cut(rest, "/?")
	method = strings.TrimSuffix(method, "/")

	if method == "" {
		return "", "", false
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return method, "", true
	}

	return method, values.Get(requestIDKey), true
}

// decodeMethodPayload turns a JSON method payload into the plain argument.
// A JSON string is unquoted; anything else is passed through verbatim.
func decodeMethodPayload(payload []byte) string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}

	return strings.TrimSpace(string(payload))
}

// encodeResponse serializes a response message as a JSON string.
func encodeResponse(message string) []byte {
	data, err := json.Marshal(message)
	if err != nil {
		return []byte(`""`)
	}

	return data
}

// toPublish converts a telemetry message to an MQTT v5 publish packet.
// User properties are sorted by key so packets are deterministic.
func toPublish(deviceID string, msg *transport.Message) *paho.Publish {
	keys := make([]string, 0, len(msg.Properties))
	for k := range msg.Properties {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	user := make(paho.UserProperties, 0, len(keys)+3)
	for _, k := range keys {
		user = append(user, paho.UserProperty{Key: k, Value: msg.Properties[k]})
	}

	if msg.ID != "" {
		user = append(user, paho.UserProperty{Key: propertyMessageID, Value: msg.ID})
	}

	if !msg.CreatedAt.IsZero() {
		user = append(user, paho.UserProperty{
			Key:   propertyCreationTime,
			Value: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	if msg.ContentEncoding != "" {
		user = append(user, paho.UserProperty{Key: propertyContentEnc, Value: msg.ContentEncoding})
	}

	return &paho.Publish{
		Topic:   telemetryTopic(deviceID),
		QoS:     telemetryQoS,
		Payload: msg.Body,
		Properties: &paho.PublishProperties{
			ContentType: msg.ContentType,
			User:        user,
		},
	}
}
