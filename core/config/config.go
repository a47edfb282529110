// Package config binds flag/env-sourced settings into a typed Config via
// viper and mapstructure: the archive portal endpoint (required), an
// optional RPC node endpoint pair, and an optional finality confirmation
// count.
package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/smartcontractkit/chainlink-firehose/core/null"
)

// ListenAddr is the fixed gRPC listen address; it is not configurable.
const ListenAddr = "0.0.0.0:13042"

// Config is the fully resolved runtime configuration.
type Config struct {
	// PortalURL is the archive portal's base endpoint. Required.
	PortalURL string `mapstructure:"portal_url"`
	// RPCHTTPURL is an Ethereum-compatible node's JSON-RPC HTTP endpoint.
	// Optional; omitting it means the engine never leaves phase A.
	RPCHTTPURL string `mapstructure:"rpc_http_url"`
	// RPCWSURL is the same node's JSON-RPC WebSocket endpoint, used for
	// eth_subscribe("newHeads") hot tailing. Optional.
	RPCWSURL string `mapstructure:"rpc_ws_url"`
	// FinalityConfirmations is how many blocks back from the RPC node's
	// head its reported finalized height sits. Optional; zero if unset.
	// Populated by Load directly, not by the mapstructure pass: a nullable
	// struct is not a shape mapstructure can decode a bare number into.
	FinalityConfirmations null.Int64 `mapstructure:"-"`
	// PortalRefreshSeconds governs how often the portal adapter refreshes
	// its cached finalized height in the background. Optional; zero
	// disables the cron refresh and falls back to per-call fetches.
	PortalRefreshSeconds int64 `mapstructure:"portal_refresh_seconds"`
}

// Validate checks the required settings are present.
func (c Config) Validate() error {
	if c.PortalURL == "" {
		return errMissingPortalURL
	}
	return nil
}

// HasRPC reports whether an RPC node adapter should be constructed.
func (c Config) HasRPC() bool {
	return c.RPCHTTPURL != ""
}

var errMissingPortalURL = configError("portal_url is required")

type configError string

func (e configError) Error() string { return string(e) }

// Load reads configuration from v (already populated from flags/env/file
// by the caller) into a Config.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return Config{}, err
	}
	if raw := v.GetString("finality_confirmations"); raw != "" {
		cfg.FinalityConfirmations.SetValid(v.GetInt64("finality_confirmations"))
	}
	return cfg, cfg.Validate()
}
