// Package settingsfile reads seed values for the settings table from TOML.
//
//	[settings]
//	invite_price = "65.00"
//	system_split = 15
//	seller_split = 50
//
// Values may be TOML integers, floats or decimal strings.
package settingsfile

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

type file struct {
	Settings map[string]any `toml:"settings"`
}

// Load reads the file at path.
func Load(path string) (map[string]decimal.Decimal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open settings file: %w", err)
	}
	defer f.Close()

	values, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}

// Decode parses settings from r.
func Decode(r io.Reader) (map[string]decimal.Decimal, error) {
	var doc file
	md, err := toml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	values := make(map[string]decimal.Decimal, len(doc.Settings))
	for key, raw := range doc.Settings {
		v, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", key, err)
		}
		values[key] = v
	}
	return values, nil
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		// Shortest representation, so 0.1 stays 0.1.
		return decimal.NewFromString(strconv.FormatFloat(v, 'f', -1, 64))
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Zero, fmt.Errorf("unsupported value type %T", raw)
	}
}
