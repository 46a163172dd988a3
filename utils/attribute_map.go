package utils

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a loosely typed set of attributes, usually read from JSON, that
// strategies decode into their own typed configuration.
type AttributeMap map[string]interface{}

// Has returns whether the given attribute is set.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// Keys returns the attribute names in no particular order.
func (am AttributeMap) Keys() []string {
	keys := make([]string, 0, len(am))
	for k := range am {
		keys = append(keys, k)
	}
	return keys
}

// DecodeAttributes decodes attributes onto result, which must be a pointer to a struct that
// already holds its defaults. Fields are matched by their json tag, numeric strings are
// converted, and attributes the struct does not know about are rejected.
func DecodeAttributes(attributes AttributeMap, result interface{}) error {
	if len(attributes) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           result,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return errors.Wrapf(err, "cannot decode attributes into %s", TypeStr(result))
	}
	return nil
}

// ModeConfig selects a registered strategy by mode and configures it with attributes that the
// strategy decodes onto its own defaults.
type ModeConfig struct {
	Mode       string       `json:"mode"`
	Attributes AttributeMap `json:"attributes,omitempty"`
}
