package registry

import (
	"errors"
	"sort"
	"time"

	"restakechain/core/events"
	nativecommon "restakechain/native/common"
)

const moduleName = "registry"

var (
	ErrOperatorNotRegistered = errors.New("registry: operator not registered")
	ErrServiceNotRegistered  = errors.New("registry: service not registered")
	ErrAlreadyRegistered     = errors.New("registry: already registered")
	ErrNotRegistered         = errors.New("registry: pair not registered")
	ErrSlashingDisabled      = errors.New("registry: slashing not enabled for service")
	ErrBipsExceedMax         = errors.New("registry: max slashing bips out of range")
	errNilState              = errors.New("registry: state not configured")
)

// engineState is the persistence surface for the registry. Histories are
// append-only and returned in insertion (ascending height/timestamp) order.
type engineState interface {
	RegistryOperatorGet(addr [20]byte) (*Operator, bool, error)
	RegistryOperatorPut(op *Operator) error
	RegistryServiceGet(addr [20]byte) (*Service, bool, error)
	RegistryServicePut(svc *Service) error
	RegistryStatusHistory(operator, service [20]byte) ([]StatusRecord, error)
	RegistryStatusAppend(operator, service [20]byte, record StatusRecord) error
	RegistryActiveCountGet(operator [20]byte) (uint64, error)
	RegistryActiveCountSet(operator [20]byte, count uint64) error
	RegistrySlashingHistory(service [20]byte) ([]*SlashingParameters, error)
	RegistrySlashingAppend(service [20]byte, params *SlashingParameters) error
	RegistryOptInHistory(operator, service [20]byte) ([]OptInRecord, error)
	RegistryOptInAppend(operator, service [20]byte, record OptInRecord) error
}

// Engine maintains the service and operator directory, the height-indexed
// bilateral relationship, and the per-service slashing configuration.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64
	heightFn func() uint64
}

// NewEngine constructs a registry engine with default no-op dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		heightFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the process-wide pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetHeightFunc overrides the block height source.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64     { return e.nowFn() }
func (e *Engine) height() uint64 { return e.heightFn() }

// RegisterOperator adds an operator to the directory.
func (e *Engine) RegisterOperator(sender [20]byte, name, metadataURI string) (*Operator, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if _, ok, err := e.state.RegistryOperatorGet(sender); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyRegistered
	}
	op := &Operator{Address: sender, Name: name, MetadataURI: metadataURI, RegisteredAt: e.now()}
	if err := e.state.RegistryOperatorPut(op); err != nil {
		return nil, err
	}
	e.emit(events.RegistryMetadataUpdated{Kind: "operator", Subject: sender, Name: name, MetadataURI: metadataURI})
	return op, nil
}

// RegisterService adds a service to the directory.
func (e *Engine) RegisterService(sender [20]byte, name, metadataURI string) (*Service, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if _, ok, err := e.state.RegistryServiceGet(sender); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyRegistered
	}
	svc := &Service{Address: sender, Name: name, MetadataURI: metadataURI, RegisteredAt: e.now()}
	if err := e.state.RegistryServicePut(svc); err != nil {
		return nil, err
	}
	e.emit(events.RegistryMetadataUpdated{Kind: "service", Subject: sender, Name: name, MetadataURI: metadataURI})
	return svc, nil
}

// UpdateOperatorMetadata replaces the operator's directory metadata.
func (e *Engine) UpdateOperatorMetadata(sender [20]byte, name, metadataURI string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	op, ok, err := e.state.RegistryOperatorGet(sender)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOperatorNotRegistered
	}
	op.Name = name
	op.MetadataURI = metadataURI
	if err := e.state.RegistryOperatorPut(op); err != nil {
		return err
	}
	e.emit(events.RegistryMetadataUpdated{Kind: "operator", Subject: sender, Name: name, MetadataURI: metadataURI})
	return nil
}

// currentStatus reads the latest transition for the pair, Inactive when no
// history exists.
func (e *Engine) currentStatus(operator, service [20]byte) (RegistrationStatus, error) {
	history, err := e.state.RegistryStatusHistory(operator, service)
	if err != nil {
		return StatusInactive, err
	}
	if len(history) == 0 {
		return StatusInactive, nil
	}
	return history[len(history)-1].Status, nil
}

func (e *Engine) transition(operator, service [20]byte, next RegistrationStatus, method string) error {
	prev, err := e.currentStatus(operator, service)
	if err != nil {
		return err
	}
	if err := e.state.RegistryStatusAppend(operator, service, StatusRecord{Height: e.height(), Time: e.now(), Status: next}); err != nil {
		return err
	}
	if prev != StatusActive && next == StatusActive {
		count, err := e.state.RegistryActiveCountGet(operator)
		if err != nil {
			return err
		}
		if err := e.state.RegistryActiveCountSet(operator, count+1); err != nil {
			return err
		}
	}
	if prev == StatusActive && next != StatusActive {
		count, err := e.state.RegistryActiveCountGet(operator)
		if err != nil {
			return err
		}
		if count > 0 {
			count--
		}
		if err := e.state.RegistryActiveCountSet(operator, count); err != nil {
			return err
		}
	}
	e.emit(events.RegistrationStatusUpdated{
		Method:   method,
		Operator: operator,
		Service:  service,
		Status:   uint8(next),
		Label:    next.String(),
	})
	return nil
}

// RegisterServiceToOperator is the operator-side half of the handshake.
func (e *Engine) RegisterServiceToOperator(operator, service [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if _, ok, err := e.state.RegistryOperatorGet(operator); err != nil {
		return err
	} else if !ok {
		return ErrOperatorNotRegistered
	}
	if _, ok, err := e.state.RegistryServiceGet(service); err != nil {
		return err
	} else if !ok {
		return ErrServiceNotRegistered
	}
	status, err := e.currentStatus(operator, service)
	if err != nil {
		return err
	}
	switch status {
	case StatusInactive:
		return e.transition(operator, service, StatusOperatorRegistered, "register_service_to_operator")
	case StatusServiceRegistered:
		return e.transition(operator, service, StatusActive, "register_service_to_operator")
	default:
		return ErrAlreadyRegistered
	}
}

// RegisterOperatorToService is the service-side half of the handshake.
func (e *Engine) RegisterOperatorToService(service, operator [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if _, ok, err := e.state.RegistryServiceGet(service); err != nil {
		return err
	} else if !ok {
		return ErrServiceNotRegistered
	}
	if _, ok, err := e.state.RegistryOperatorGet(operator); err != nil {
		return err
	} else if !ok {
		return ErrOperatorNotRegistered
	}
	status, err := e.currentStatus(operator, service)
	if err != nil {
		return err
	}
	switch status {
	case StatusInactive:
		return e.transition(operator, service, StatusServiceRegistered, "register_operator_to_service")
	case StatusOperatorRegistered:
		return e.transition(operator, service, StatusActive, "register_operator_to_service")
	default:
		return ErrAlreadyRegistered
	}
}

// DeregisterServiceFromOperator tears the pair down from the operator side.
func (e *Engine) DeregisterServiceFromOperator(operator, service [20]byte) error {
	return e.deregister(operator, service, "deregister_service_from_operator")
}

// DeregisterOperatorFromService tears the pair down from the service side.
func (e *Engine) DeregisterOperatorFromService(service, operator [20]byte) error {
	return e.deregister(operator, service, "deregister_operator_from_service")
}

func (e *Engine) deregister(operator, service [20]byte, method string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	status, err := e.currentStatus(operator, service)
	if err != nil {
		return err
	}
	if status == StatusInactive {
		return ErrNotRegistered
	}
	return e.transition(operator, service, StatusInactive, method)
}

// Status resolves the pair's registration status. With a nil height the
// current status is returned; otherwise the status in force at that height.
func (e *Engine) Status(operator, service [20]byte, height *uint64) (RegistrationStatus, error) {
	if e == nil || e.state == nil {
		return StatusInactive, errNilState
	}
	history, err := e.state.RegistryStatusHistory(operator, service)
	if err != nil {
		return StatusInactive, err
	}
	if len(history) == 0 {
		return StatusInactive, nil
	}
	if height == nil {
		return history[len(history)-1].Status, nil
	}
	// First record strictly above the queried height; the answer precedes it.
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].Height > *height
	})
	if idx == 0 {
		return StatusInactive, nil
	}
	return history[idx-1].Status, nil
}

// StatusAtTime resolves the pair's registration status in force at the
// given block timestamp. Used by the router to judge slashing eligibility at
// the infraction time.
func (e *Engine) StatusAtTime(operator, service [20]byte, timestamp int64) (RegistrationStatus, error) {
	if e == nil || e.state == nil {
		return StatusInactive, errNilState
	}
	history, err := e.state.RegistryStatusHistory(operator, service)
	if err != nil {
		return StatusInactive, err
	}
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].Time > timestamp
	})
	if idx == 0 {
		return StatusInactive, nil
	}
	return history[idx-1].Status, nil
}

// StatusHistory returns the pair's full transition history.
func (e *Engine) StatusHistory(operator, service [20]byte) ([]StatusRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.RegistryStatusHistory(operator, service)
}

// IsOperatorActive reports whether the operator has at least one Active
// relationship. Vaults of active operators must queue withdrawals.
func (e *Engine) IsOperatorActive(operator [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	count, err := e.state.RegistryActiveCountGet(operator)
	if err != nil {
		return false
	}
	return count > 0
}

// EnableSlashing appends a new slashing parameter record for the service,
// effective from the current block time.
func (e *Engine) EnableSlashing(service, destination [20]byte, maxBips, resolutionWindow uint64) (*SlashingParameters, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if _, ok, err := e.state.RegistryServiceGet(service); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrServiceNotRegistered
	}
	if maxBips == 0 || maxBips > MaxSlashingBips {
		return nil, ErrBipsExceedMax
	}
	params := &SlashingParameters{
		Destination:      destination,
		MaxBips:          maxBips,
		ResolutionWindow: resolutionWindow,
		EnabledAt:        e.now(),
		Enabled:          true,
	}
	if err := e.state.RegistrySlashingAppend(service, params); err != nil {
		return nil, err
	}
	e.emit(events.SlashingParametersUpdated{
		Service:          service,
		Destination:      destination,
		MaxBips:          maxBips,
		ResolutionWindow: resolutionWindow,
		Enabled:          true,
	})
	return params.Clone(), nil
}

// DisableSlashing appends a disabled record, effective immediately for new
// requests. Pending requests already filed are unaffected.
func (e *Engine) DisableSlashing(service [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	params := &SlashingParameters{EnabledAt: e.now(), Enabled: false}
	if err := e.state.RegistrySlashingAppend(service, params); err != nil {
		return err
	}
	e.emit(events.SlashingParametersUpdated{Service: service, Enabled: false})
	return nil
}

// SlashingParameters resolves the parameters in force at the given
// timestamp, or nil when slashing was not enabled then.
func (e *Engine) SlashingParameters(service [20]byte, timestamp int64) (*SlashingParameters, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	history, err := e.state.RegistrySlashingHistory(service)
	if err != nil {
		return nil, err
	}
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].EnabledAt > timestamp
	})
	if idx == 0 {
		return nil, nil
	}
	record := history[idx-1]
	if !record.Enabled {
		return nil, nil
	}
	return record.Clone(), nil
}

// OptInToSlashing records the operator's consent to be slashed by the
// service, effective from the current block time.
func (e *Engine) OptInToSlashing(operator, service [20]byte) error {
	return e.setOptIn(operator, service, true)
}

// OptOutOfSlashing withdraws consent for new requests. Pending requests are
// not retroactively cancelled.
func (e *Engine) OptOutOfSlashing(operator, service [20]byte) error {
	return e.setOptIn(operator, service, false)
}

func (e *Engine) setOptIn(operator, service [20]byte, optedIn bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if _, ok, err := e.state.RegistryOperatorGet(operator); err != nil {
		return err
	} else if !ok {
		return ErrOperatorNotRegistered
	}
	record := OptInRecord{OptedIn: optedIn, EffectiveAt: e.now()}
	if err := e.state.RegistryOptInAppend(operator, service, record); err != nil {
		return err
	}
	e.emit(events.OperatorOptInUpdated{Operator: operator, Service: service, OptedIn: optedIn})
	return nil
}

// IsOptedIn reports whether the operator had opted in to slashing by the
// service as of the given timestamp.
func (e *Engine) IsOptedIn(operator, service [20]byte, timestamp int64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	history, err := e.state.RegistryOptInHistory(operator, service)
	if err != nil {
		return false, err
	}
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].EffectiveAt > timestamp
	})
	if idx == 0 {
		return false, nil
	}
	return history[idx-1].OptedIn, nil
}
