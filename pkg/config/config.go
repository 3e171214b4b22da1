package config

import (
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	Debug      bool
	Relay      Relay
	Media      Media
	Attention  Attention
	Webrtc     Webrtc
	Monitoring Monitoring
}

type Relay struct {
	// Address of the signaling relay, e.g. ws://localhost:8000/ws.
	Address string `fig:"address" default:"ws://localhost:8000/ws"`
	Room    string
	Name    string
	// Identity is an application-level user id sent on join.
	// Participant ids inside the room are assigned by the relay.
	Identity string
	// Role is either participant or moderator.
	Role string `fig:"role" default:"participant"`
}

type Media struct {
	// VideoFile / AudioFile are the sources of the shared local stream
	// (IVF with VP8 frames and Ogg with Opus pages).
	// Missing files degrade the session to an empty stream.
	VideoFile string
	AudioFile string
}

type Attention struct {
	// Endpoint of the frame scoring service; empty disables sampling.
	Endpoint string
	Interval time.Duration `fig:"interval" default:"4s"`
}

type Webrtc struct {
	DisableDefaultInterceptors bool
	IceServers                 []IceServer
	LogLevel                   int
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

type Monitoring struct {
	Port             int
	URLPrefix        string
	MetricEnabled    bool
	ProfilingEnabled bool
}

// allows custom config path
var configPath string

func NewConfig() (*Config, error) {
	var conf Config
	if err := LoadConfig(&conf, configPath); err != nil {
		return nil, err
	}
	if len(conf.Webrtc.IceServers) == 0 {
		conf.Webrtc.IceServers = []IceServer{{Urls: "stun:stun.l.google.com:19302"}}
	}
	return &conf, nil
}

func (c *Config) WithFlags(fs *pflag.FlagSet) *Config {
	fs.StringVar(&c.Relay.Address, "relay", c.Relay.Address, "Signaling relay URL")
	fs.StringVar(&c.Relay.Room, "room", c.Relay.Room, "Room code to join")
	fs.StringVar(&c.Relay.Name, "name", c.Relay.Name, "Display name")
	fs.StringVar(&c.Relay.Role, "role", c.Relay.Role, "Session role (participant|moderator)")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging")
	fs.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
	fs.StringVarP(&configPath, "conf", "c", "", "Set custom configuration file path")
	return c
}

func (c *Config) IsModerator() bool { return c.Relay.Role == "moderator" }
