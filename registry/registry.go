// Package registry operates the global registry of camera drivers. Driver packages register
// themselves from init, and binaries pick one by model name at startup.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/logging"
)

type (
	// AttributeMap holds the free-form attributes handed to a driver constructor.
	AttributeMap map[string]interface{}

	// A CreateDriver creates a camera driver from the given attributes.
	CreateDriver func(ctx context.Context, attrs AttributeMap, logger logging.Logger) (camera.Driver, error)
)

// Driver stores a driver constructor (mandatory).
type Driver struct {
	Constructor CreateDriver
}

var (
	driverRegistryMu sync.RWMutex
	driverRegistry   = map[string]Driver{}
)

// RegisterDriver registers a driver model to a creator.
func RegisterDriver(model string, creator Driver) {
	driverRegistryMu.Lock()
	defer driverRegistryMu.Unlock()
	if _, old := driverRegistry[model]; old {
		panic(errors.Errorf("trying to register two drivers with same model %s", model))
	}
	if creator.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for driver model %s", model))
	}
	driverRegistry[model] = creator
}

// DriverLookup looks up a driver creator by the given model. false is returned if
// there is no creator registered.
func DriverLookup(model string) (Driver, bool) {
	driverRegistryMu.RLock()
	defer driverRegistryMu.RUnlock()
	creator, ok := driverRegistry[model]
	return creator, ok
}

// RegisteredDrivers returns the sorted model names of all registered drivers.
func RegisteredDrivers() []string {
	driverRegistryMu.RLock()
	defer driverRegistryMu.RUnlock()
	models := make([]string, 0, len(driverRegistry))
	for model := range driverRegistry {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// NewDriver constructs the driver registered under model.
func NewDriver(ctx context.Context, model string, attrs AttributeMap, logger logging.Logger) (camera.Driver, error) {
	creator, ok := DriverLookup(model)
	if !ok {
		return nil, errors.Errorf("unknown camera driver %q, registered drivers are %v", model, RegisteredDrivers())
	}
	return creator.Constructor(ctx, attrs, logger.Sublogger(model))
}

// DecodeAttributes decodes attrs into the struct pointed to by out, matching keys against the
// struct's json tags.
func DecodeAttributes(attrs AttributeMap, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "error creating attribute decoder")
	}
	return errors.Wrap(decoder.Decode(map[string]interface{}(attrs)), "error decoding driver attributes")
}
