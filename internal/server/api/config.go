package api

// ServerConfig configures the control API listener.
type ServerConfig struct {
	Addr string `help:"Control API listen address (empty disables the API)" default:"localhost:3243" env:"PROXI_API_ADDR"`
}
