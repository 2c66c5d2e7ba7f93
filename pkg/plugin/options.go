package plugin

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeOptions decodes a plugin option map into out, a pointer to a struct
// with `mapstructure` tags. Durations may be given as strings ("250ms") and
// numbers may arrive as strings from environment overrides.
func DecodeOptions(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}
