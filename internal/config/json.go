package config

import "encoding/json"

func unmarshalJSON(data []byte, cfg *Config) error {
	return json.Unmarshal(data, cfg)
}
