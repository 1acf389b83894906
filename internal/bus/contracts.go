package bus

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/promptforge/backend/internal/infrastructure/logging"
	"github.com/promptforge/backend/internal/shared/errs"
	"github.com/promptforge/backend/internal/shared/types"
)

// ContractRegistry maps event types to their payload contracts. A contract
// is authoritative: at most one per event type, last registration wins.
type ContractRegistry struct {
	mu        sync.RWMutex
	contracts map[string]types.Contract
	logger    *logging.Logger
}

// NewContractRegistry creates an empty contract registry.
func NewContractRegistry(logger *logging.Logger) *ContractRegistry {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &ContractRegistry{
		contracts: make(map[string]types.Contract),
		logger:    logger,
	}
}

// Register binds a contract to its event type. Re-registering an event type
// overwrites the prior contract with a warning, it does not error.
func (r *ContractRegistry) Register(c types.Contract) error {
	if c.EventType == "" {
		return fmt.Errorf("contract event_type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, exists := r.contracts[c.EventType]; exists {
		r.logger.Warn("Overwriting event contract",
			zap.String("event_type", c.EventType),
			zap.String("prior_source", prior.SourceApp),
			zap.String("new_source", c.SourceApp),
		)
	}
	r.contracts[c.EventType] = c
	return nil
}

// Unregister removes the contract for an event type, if any.
func (r *ContractRegistry) Unregister(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contracts, eventType)
}

// Get retrieves the contract for an event type.
func (r *ContractRegistry) Get(eventType string) (types.Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[eventType]
	return c, ok
}

// List returns all registered contracts sorted by event type.
func (r *ContractRegistry) List() []types.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventType < out[j].EventType })
	return out
}

// ValidatePublish validates a payload against the contract registered for
// eventType. Event types without a contract validate trivially.
func (r *ContractRegistry) ValidatePublish(eventType string, data map[string]interface{}) error {
	c, ok := r.Get(eventType)
	if !ok {
		return nil
	}
	return ValidateSchema(eventType, c.Payload, data)
}

// ValidateSchema checks data against a declarative schema: required fields
// must be present and every present field must match its declared type.
func ValidateSchema(eventType string, schema types.Schema, data map[string]interface{}) error {
	for name, field := range schema {
		value, present := data[name]
		if !present {
			if field.Required {
				return errs.ContractViolation(eventType, fmt.Sprintf("missing required field %q", name))
			}
			continue
		}
		if !matchesType(field.Type, value) {
			return errs.ContractViolation(eventType,
				fmt.Sprintf("field %q is not of type %s", name, field.Type))
		}
	}
	return nil
}

func matchesType(ft types.FieldType, value interface{}) bool {
	if value == nil {
		return true
	}
	switch ft {
	case types.FieldString:
		_, ok := value.(string)
		return ok
	case types.FieldBoolean:
		_, ok := value.(bool)
		return ok
	case types.FieldNumber:
		return isNumber(value)
	case types.FieldInteger:
		switch v := value.(type) {
		case int, int32, int64, uint, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		case float32:
			return v == float32(int64(v))
		default:
			return false
		}
	case types.FieldObject:
		_, ok := value.(map[string]interface{})
		return ok
	case types.FieldArray:
		switch value.(type) {
		case []interface{}, []string, []map[string]interface{}:
			return true
		default:
			return false
		}
	case types.FieldAny, "":
		return true
	default:
		return true
	}
}

func isNumber(value interface{}) bool {
	switch value.(type) {
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
