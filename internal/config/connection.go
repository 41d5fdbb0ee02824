package config

import (
	"errors"
	"fmt"
	"strings"
)

// hubMQTTPort is the MQTT over TLS port of an IoT hub.
const hubMQTTPort = "8883"

var (
	// errMalformedConnectionString is returned for segments without "=".
	errMalformedConnectionString = errors.New("malformed connection string")
	// errConnectionStringField is returned when a required field is missing.
	errConnectionStringField = errors.New("connection string is missing a required field")
)

// ConnectionString is a parsed device connection string of the form
// "HostName=<host>;DeviceId=<id>;SharedAccessKey=<key>".
type ConnectionString struct {
	// HostName is the hub host.
	HostName string
	// DeviceID is the device identity registered on the hub.
	DeviceID string
	// SharedAccessKey is the device key, if present.
	SharedAccessKey string
	// SharedAccessSignature is a pre-computed token, if present.
	SharedAccessSignature string
}

// Broker is the resolved MQTT endpoint of the device.
type Broker struct {
	// URL is the broker URL.
	URL string
	// DeviceID is used as the MQTT client ID and in topics.
	DeviceID string
	// Username is the MQTT username, empty for anonymous brokers.
	Username string
	// Password is the MQTT password, empty for anonymous brokers.
	Password string
}

// ParseConnectionString parses a semicolon separated key=value list.
// Keys are matched case-insensitively; HostName and DeviceId are required.
func ParseConnectionString(s string) (*ConnectionString, error) {
	var cs ConnectionString

	for segment := range strings.SplitSeq(strings.TrimSpace(s), ";") {
		if segment == "" {
			continue
		}

		// Values such as base64 keys may themselves contain "=".
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			return nil, fmt.Errorf("%w: segment %q", errMalformedConnectionString, segment)
		}

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "hostname":
			cs.HostName = strings.TrimSpace(value)
		case "deviceid":
			cs.DeviceID = strings.TrimSpace(value)
		case "sharedaccesskey":
			cs.SharedAccessKey = strings.TrimSpace(value)
		case "sharedaccesssignature":
			cs.SharedAccessSignature = strings.TrimSpace(value)
		}
	}

	if cs.HostName == "" {
		return nil, fmt.Errorf("%w: HostName", errConnectionStringField)
	}

	if cs.DeviceID == "" {
		return nil, fmt.Errorf("%w: DeviceId", errConnectionStringField)
	}

	return &cs, nil
}

// Credential returns the secret presented to the broker: a pre-computed
// signature when available, the raw key otherwise.
func (cs *ConnectionString) Credential() string {
	if cs.SharedAccessSignature != "" {
		return cs.SharedAccessSignature
	}

	return cs.SharedAccessKey
}
