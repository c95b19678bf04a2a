package events

import (
	"strconv"

	"restakechain/core/types"
	"restakechain/crypto"
)

const (
	TypeRegistrationStatusUpdated = "RegistrationStatusUpdated"
	TypeRegistryMetadataUpdated   = "MetadataUpdated"
	TypeSlashingParametersUpdated = "SlashingParametersUpdated"
	TypeOperatorOptInUpdated      = "OperatorOptInUpdated"
)

// RegistrationStatusUpdated records a transition of the bilateral
// operator/service relationship.
type RegistrationStatusUpdated struct {
	Method   string
	Operator [20]byte
	Service  [20]byte
	Status   uint8
	Label    string
}

func (RegistrationStatusUpdated) EventType() string { return TypeRegistrationStatusUpdated }

func (e RegistrationStatusUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRegistrationStatusUpdated,
		Attributes: map[string]string{
			"method":   e.Method,
			"operator": crypto.MustAddressString(e.Operator),
			"service":  crypto.MustAddressString(e.Service),
			"status":   strconv.FormatUint(uint64(e.Status), 10),
			"label":    e.Label,
		},
	}
}

// RegistryMetadataUpdated records directory registration or metadata change
// for an operator or a service.
type RegistryMetadataUpdated struct {
	Kind        string
	Subject     [20]byte
	Name        string
	MetadataURI string
}

func (RegistryMetadataUpdated) EventType() string { return TypeRegistryMetadataUpdated }

func (e RegistryMetadataUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRegistryMetadataUpdated,
		Attributes: map[string]string{
			"kind":         e.Kind,
			"subject":      crypto.MustAddressString(e.Subject),
			"name":         e.Name,
			"metadata_uri": e.MetadataURI,
		},
	}
}

// SlashingParametersUpdated records a service enabling or disabling slashing.
type SlashingParametersUpdated struct {
	Service          [20]byte
	Destination      [20]byte
	MaxBips          uint64
	ResolutionWindow uint64
	Enabled          bool
}

func (SlashingParametersUpdated) EventType() string { return TypeSlashingParametersUpdated }

func (e SlashingParametersUpdated) Event() *types.Event {
	attrs := map[string]string{
		"service": crypto.MustAddressString(e.Service),
		"enabled": strconv.FormatBool(e.Enabled),
	}
	if e.Enabled {
		attrs["max_slashing_bips"] = strconv.FormatUint(e.MaxBips, 10)
		attrs["resolution_window"] = strconv.FormatUint(e.ResolutionWindow, 10)
		if e.Destination != [20]byte{} {
			attrs["destination"] = crypto.MustAddressString(e.Destination)
		}
	}
	return &types.Event{Type: TypeSlashingParametersUpdated, Attributes: attrs}
}

// OperatorOptInUpdated records an operator opting in to or out of slashing
// by a service.
type OperatorOptInUpdated struct {
	Operator [20]byte
	Service  [20]byte
	OptedIn  bool
}

func (OperatorOptInUpdated) EventType() string { return TypeOperatorOptInUpdated }

func (e OperatorOptInUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeOperatorOptInUpdated,
		Attributes: map[string]string{
			"operator": crypto.MustAddressString(e.Operator),
			"service":  crypto.MustAddressString(e.Service),
			"opted_in": strconv.FormatBool(e.OptedIn),
		},
	}
}
