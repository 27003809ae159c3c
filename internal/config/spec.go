package config

import "time"

// Config is the root configuration shared by memgate-issuer and
// memgate-redeemer.
type Config struct {
	Storage  StorageSection  `koanf:"storage" yaml:"storage" json:"storage"`
	Log      LogSection      `koanf:"log" yaml:"log" json:"log"`
	Mail     MailSection     `koanf:"mail" yaml:"mail" json:"mail"`
	Issuer   IssuerSection   `koanf:"issuer" yaml:"issuer" json:"issuer"`
	Redeemer RedeemerSection `koanf:"redeemer" yaml:"redeemer" json:"redeemer"`

	// BaseDir resolves relative roster and template paths. Load sets it
	// to the directory of the configuration file.
	BaseDir string `koanf:"-" yaml:"-" json:"-"`
}

// StorageSection selects the member store.
type StorageSection struct {
	Driver string `koanf:"driver" yaml:"driver" json:"driver"`
	// Path is the sqlite file or the badger directory.
	Path string `koanf:"path" yaml:"path" json:"path"`
	// DSN is the postgres connection string.
	DSN        string        `koanf:"dsn" yaml:"dsn" json:"dsn"`
	GCInterval time.Duration `koanf:"gc_interval" yaml:"gc_interval" json:"gc_interval"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`
	Format string `koanf:"format" yaml:"format" json:"format"`
}

// MailSection configures the SMTP transport.
type MailSection struct {
	Host        string        `koanf:"host" yaml:"host" json:"host"`
	Port        int           `koanf:"port" yaml:"port" json:"port"`
	TLS         string        `koanf:"tls" yaml:"tls" json:"tls"`
	Username    string        `koanf:"username" yaml:"username" json:"username"`
	Password    string        `koanf:"password" yaml:"password" json:"password"`
	FromAddress string        `koanf:"from_address" yaml:"from_address" json:"from_address"`
	FromName    string        `koanf:"from_name" yaml:"from_name" json:"from_name"`
	Timeout     time.Duration `koanf:"timeout" yaml:"timeout" json:"timeout"`
}

// IssuerSection configures the invitation batch.
type IssuerSection struct {
	InviteLink string         `koanf:"invite_link" yaml:"invite_link" json:"invite_link"`
	Subject    string         `koanf:"subject" yaml:"subject" json:"subject"`
	Pacing     PacingSection  `koanf:"pacing" yaml:"pacing" json:"pacing"`
	Groups     []GroupSection `koanf:"groups" yaml:"groups" json:"groups"`
}

// Pacing modes.
const (
	PacingFixed       = "fixed"
	PacingTokenBucket = "token_bucket"
	PacingNone        = "none"
)

// PacingSection configures the delay between dispatches.
type PacingSection struct {
	Mode  string        `koanf:"mode" yaml:"mode" json:"mode"`
	Delay time.Duration `koanf:"delay" yaml:"delay" json:"delay"`
	Rate  float64       `koanf:"rate" yaml:"rate" json:"rate"`
	Burst int           `koanf:"burst" yaml:"burst" json:"burst"`
}

// GroupSection is one roster group.
type GroupSection struct {
	Name         string `koanf:"name" yaml:"name" json:"name"`
	RosterFile   string `koanf:"roster_file" yaml:"roster_file" json:"roster_file"`
	TemplateFile string `koanf:"template_file" yaml:"template_file" json:"template_file"`
	PrivilegeID  string `koanf:"privilege_id" yaml:"privilege_id" json:"privilege_id"`
}

// RedeemerSection configures the redemption bot.
type RedeemerSection struct {
	BotToken      string        `koanf:"bot_token" yaml:"bot_token" json:"bot_token"`
	GuildID       string        `koanf:"guild_id" yaml:"guild_id" json:"guild_id"`
	ChannelID     string        `koanf:"channel_id" yaml:"channel_id" json:"channel_id"`
	CommandPrefix string        `koanf:"command_prefix" yaml:"command_prefix" json:"command_prefix"`
	Command       string        `koanf:"command" yaml:"command" json:"command"`
	CommunityName string        `koanf:"community_name" yaml:"community_name" json:"community_name"`
	StatusAddr    string        `koanf:"status_addr" yaml:"status_addr" json:"status_addr"`
	UsageTTL      time.Duration `koanf:"usage_ttl" yaml:"usage_ttl" json:"usage_ttl"`
	ErrorTTL      time.Duration `koanf:"error_ttl" yaml:"error_ttl" json:"error_ttl"`
	WelcomeTTL    time.Duration `koanf:"welcome_ttl" yaml:"welcome_ttl" json:"welcome_ttl"`
}
