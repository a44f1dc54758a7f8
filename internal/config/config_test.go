package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vmplex/internal/config"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *ConfigTestSuite) writeConfig(content string) {
	s.Require().NoError(os.WriteFile(filepath.Join(s.dir, "vmplex.yaml"), []byte(content), 0o600))
}

func (s *ConfigTestSuite) TestLoadDefaults() {
	cfg, err := config.NewManagerWithPaths(s.dir).Load()
	s.Require().NoError(err)

	s.Equal("vmplex_batch.log", cfg.BatchLog)
	s.Equal(22, cfg.SSHPort)
	s.Equal("VBoxManage", cfg.VBoxManage)
	s.Equal(time.Second, cfg.PollInterval)
	s.Equal("error", cfg.LogLevel)
	s.Equal("text", cfg.LogFormat)
	s.False(cfg.Webservice)
	s.False(cfg.Quiet)
}

func (s *ConfigTestSuite) TestLoadFile() {
	s.writeConfig(`
webservice: true
config-file: fleet.conf
opts: host=vbox1,port=18083
ssh-port: 2222
poll-interval: 250ms
log-level: info
log-format: json
`)

	cfg, err := config.NewManagerWithPaths(s.dir).Load()
	s.Require().NoError(err)

	s.True(cfg.Webservice)
	s.Equal("fleet.conf", cfg.ConfigFile)
	s.Equal("host=vbox1,port=18083", cfg.Opts)
	s.Equal(2222, cfg.SSHPort)
	s.Equal(250*time.Millisecond, cfg.PollInterval)
	s.Equal("info", cfg.LogLevel)
	s.Equal("json", cfg.LogFormat)
}

func (s *ConfigTestSuite) TestLoadEnvOverridesFile() {
	s.writeConfig("batch-log: from-file.log\n")
	s.T().Setenv("VMPLEX_BATCH_LOG", "from-env.log")
	s.T().Setenv("VMPLEX_QUIET", "true")

	cfg, err := config.NewManagerWithPaths(s.dir).Load()
	s.Require().NoError(err)
	s.Equal("from-env.log", cfg.BatchLog)
	s.True(cfg.Quiet)
}

func (s *ConfigTestSuite) TestLoadInvalid() {
	s.writeConfig("log-level: debug\n")
	_, err := config.NewManagerWithPaths(s.dir).Load()
	s.Error(err)
}

func (s *ConfigTestSuite) TestValidate() {
	valid := func() *config.Config {
		return &config.Config{
			BatchLog:     "b.log",
			SSHPort:      22,
			VBoxManage:   "VBoxManage",
			PollInterval: time.Second,
			LogLevel:     "info",
			LogFormat:    "text",
		}
	}

	tests := []struct {
		description string
		mutate      func(*config.Config)
		expectedErr bool
	}{
		{"valid", func(*config.Config) {}, false},
		{"ssh port zero", func(c *config.Config) { c.SSHPort = 0 }, true},
		{"ssh port too large", func(c *config.Config) { c.SSHPort = 65536 }, true},
		{"zero poll interval", func(c *config.Config) { c.PollInterval = 0 }, true},
		{"empty binary", func(c *config.Config) { c.VBoxManage = " " }, true},
		{"empty batch log", func(c *config.Config) { c.BatchLog = "" }, true},
		{"bad log level", func(c *config.Config) { c.LogLevel = "debug" }, true},
		{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }, true},
	}

	manager := config.NewManagerWithPaths(s.dir)
	for _, test := range tests {
		cfg := valid()
		test.mutate(cfg)
		err := manager.Validate(cfg)
		if test.expectedErr {
			s.Error(err, test.description)
		} else {
			s.NoError(err, test.description)
		}
	}
}

func (s *ConfigTestSuite) TestGetEnvVarNames() {
	names := config.GetEnvVarNames()
	s.Contains(names, "VMPLEX_WEBSERVICE")
	s.Contains(names, "VMPLEX_POLL_INTERVAL")
	for _, name := range names {
		s.Regexp(`^VMPLEX_[A-Z_]+$`, name)
	}
}
