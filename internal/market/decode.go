package market

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/career-minimax/internal/errdefs"
)

// rawSignal mirrors the loosely typed records providers and LLMs emit.
// Numbers may arrive as strings and confidence may be missing.
type rawSignal struct {
	OptionID   string   `mapstructure:"option_id"`
	Option     string   `mapstructure:"option"`
	ScenarioID string   `mapstructure:"scenario_id"`
	Scenario   string   `mapstructure:"scenario"`
	Dimension  string   `mapstructure:"dimension"`
	Metric     string   `mapstructure:"metric"`
	Value      *float64 `mapstructure:"value"`
	Unit       string   `mapstructure:"unit"`
	Source     string   `mapstructure:"source"`
	Confidence *float64 `mapstructure:"confidence"`
}

// DecodeSignals converts provider records into Signals. Keys are matched
// case-insensitively, numeric strings are accepted, and a missing confidence
// means full confidence. A record without a value, or with a null or blank
// one, is missing data and is left out so the cell falls back to the neutral
// default. Records that cannot be decoded fail with a DataError naming their
// index.
func DecodeSignals(records []map[string]any) ([]Signal, error) {
	signals := make([]Signal, 0, len(records))

	for idx, record := range records {
		fields := lowerKeys(record)
		if isBlank(fields["value"]) {
			delete(fields, "value")
		}

		var raw rawSignal
		cfg := &mapstructure.DecoderConfig{
			Result:           &raw,
			TagName:          "mapstructure",
			WeaklyTypedInput: true,
		}

		decoder, err := mapstructure.NewDecoder(cfg)
		if err != nil {
			return nil, fmt.Errorf("create signal decoder: %w", err)
		}

		if err := decoder.Decode(fields); err != nil {
			return nil, errdefs.NewData(fmt.Sprintf("signals[%d]", idx), "decode record: %v", err)
		}

		signal := Signal{
			OptionID:   firstNonEmpty(raw.OptionID, raw.Option),
			ScenarioID: firstNonEmpty(raw.ScenarioID, raw.Scenario),
			Dimension:  strings.ToLower(firstNonEmpty(raw.Dimension, raw.Metric)),
			Unit:       strings.TrimSpace(raw.Unit),
			Source:     strings.TrimSpace(raw.Source),
			Confidence: 1,
		}
		if raw.Confidence != nil {
			signal.Confidence = *raw.Confidence
		}

		if signal.OptionID == "" {
			return nil, errdefs.NewData(fmt.Sprintf("signals[%d].option_id", idx), "option id is required")
		}
		if signal.Dimension == "" {
			return nil, errdefs.NewData(fmt.Sprintf("signals[%d].dimension", idx), "dimension is required")
		}
		if raw.Value == nil {
			continue
		}
		signal.Value = *raw.Value

		signals = append(signals, signal)
	}

	return signals, nil
}

func lowerKeys(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// isBlank reports whether a decoded value carries no observation. A blank
// string would otherwise be read as zero by the weak decoder.
func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
