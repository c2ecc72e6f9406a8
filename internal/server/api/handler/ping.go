package handler

import (
	"encoding/json"
	"log/slog"

	"github.com/proxi-pad/proxi/apitypes"
	"github.com/proxi-pad/proxi/internal/server/api"
)

// Ping returns a handler for the "ping" endpoint.
// It provides a minimal identity + version response.
func Ping(version string) api.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(_ *api.Request, res *api.Response, _ *slog.Logger) error {
		b, err := json.Marshal(apitypes.PingResponse{Server: "PROXI", Version: version})
		if err != nil {
			return err
		}
		res.JSON = string(b)
		return nil
	}
}
