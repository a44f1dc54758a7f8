package configstore_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"vmplex/internal/configstore"
	"vmplex/internal/controlplane/fake"
	"vmplex/internal/endpoint"
	vmerrors "vmplex/internal/errors"
	"vmplex/internal/fleet"
)

// registry registers hosts against a fake platform, keeping an environment
// even when its connect fails.
type registry struct {
	topo     *fleet.Topology
	platform *fake.Platform
}

func (r *registry) Topology() *fleet.Topology { return r.topo }

func (r *registry) AddHost(ctx context.Context, ep endpoint.Endpoint) error {
	env := fleet.NewEnvironment(ep, r.platform, nil)
	if err := r.topo.AddEnvironment(env); err != nil {
		return err
	}
	return env.Connect(ctx)
}

type StoreTestSuite struct {
	suite.Suite
	ctx      context.Context
	dir      string
	platform *fake.Platform
	registry *registry
	store    *configstore.Store
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	s.platform = fake.NewPlatform()
	s.registry = &registry{topo: fleet.NewTopology(), platform: s.platform}
	s.store = configstore.New(s.registry, nil)
}

func (s *StoreTestSuite) writeFile(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *StoreTestSuite) TestParseLine() {
	tests := []struct {
		description      string
		line             string
		expectedErr      bool
		expectedParams   map[string]string
		expectedWarnings int
	}{
		{"host line", "host name=alpha port=18083", false, map[string]string{"name": "alpha", "port": "18083"}, 0},
		{"machine line", "machine host=alpha name=web1 group=web", false, map[string]string{"host": "alpha", "name": "web1", "group": "web"}, 0},
		{"unknown keyword", "server name=alpha", true, nil, 0},
		{"not key value", "host alpha", true, nil, 0},
		{"unknown parameter skipped", "host name=alpha color=red", false, map[string]string{"name": "alpha"}, 1},
		{"duplicate keeps first", "host name=alpha name=beta", false, map[string]string{"name": "alpha"}, 1},
		{"empty value", "machine host=alpha name=web1 user=", false, map[string]string{"host": "alpha", "name": "web1", "user": ""}, 0},
		{"quoted field", "host name=alpha 'password=my secret'", false, map[string]string{"name": "alpha", "password": "my secret"}, 0},
		{"quoted value", `machine host=alpha name=web1 password="pass word"`, false, map[string]string{"host": "alpha", "name": "web1", "password": "pass word"}, 0},
		{"unbalanced quote", "host name=alpha 'password=open", true, nil, 0},
	}

	for _, test := range tests {
		rec, warnings, err := configstore.ParseLine(4, test.line)
		if test.expectedErr {
			s.Error(err, test.description)
			var ce *vmerrors.ClassifiedError
			s.True(errors.As(err, &ce), test.description)
			s.Equal(4, ce.Line, test.description)
			continue
		}
		s.NoError(err, test.description)
		s.Equal(test.expectedParams, rec.Params, test.description)
		s.Len(warnings, test.expectedWarnings, test.description)
	}
}

func (s *StoreTestSuite) TestParseSkipsComments() {
	records, warnings, err := configstore.Parse(strings.NewReader("# fleet\n\nhost name=alpha\n   \n  # indented\nmachine host=alpha name=vm1\n"))
	s.Require().NoError(err)
	s.Empty(warnings)
	s.Require().Len(records, 2)
	s.Equal(3, records[0].Line)
	s.Equal(6, records[1].Line)
}

func (s *StoreTestSuite) TestWarningString() {
	s.Equal("Undefined parameter 'x' (line 2)", configstore.Warning{Line: 2, Message: "Undefined parameter 'x'"}.String())
	s.Equal("plain", configstore.Warning{Message: "plain"}.String())
}

func (s *StoreTestSuite) TestLoadScenario() {
	path := s.writeFile("fleet.conf", "host name=alpha port=18083\nmachine host=alpha name=web1 user=admin password=pw1\n")

	res, err := s.store.Load(s.ctx, path)
	s.Require().NoError(err)
	s.Equal(1, res.Hosts)
	s.Equal(1, res.Machines)
	s.Empty(res.Warnings)

	env, ok := s.registry.topo.Environment("alpha")
	s.Require().True(ok)
	s.True(env.Connected())
	creds, ok := env.Machine("web1")
	s.True(ok)
	s.Equal(fleet.Credentials{User: "admin", Password: "pw1"}, creds)

	resolved, err := fleet.ResolveCredentials(s.ctx, "web1", env, s.registry.topo.Groups(), false, nil)
	s.NoError(err)
	s.Equal(fleet.Credentials{User: "admin", Password: "pw1"}, resolved)
}

func (s *StoreTestSuite) TestLoadGroups() {
	path := s.writeFile("groups.conf", strings.Join([]string{
		"host name=h1",
		"host name=lab address=10.0.0.7 port=9000 user=admin password=secret",
		"machine host=h1 name=vm1 group=web",
		"machine host=lab name=vm2 group=web user=root password=toor",
		"machine host=nowhere name=vm3 group=db",
	}, "\n"))

	res, err := s.store.Load(s.ctx, path)
	s.Require().NoError(err)
	s.Equal(2, res.Hosts)
	s.Equal(3, res.Machines)

	lab, ok := s.registry.topo.Environment("lab")
	s.Require().True(ok)
	s.Equal("10.0.0.7", lab.Host())
	s.Equal(9000, lab.Port())

	web, ok := s.registry.topo.Group("web")
	s.Require().True(ok)
	s.Equal([]string{"h1", "lab"}, web.Hosts())

	db, ok := s.registry.topo.Group("db")
	s.Require().True(ok)
	s.Equal([]string{"nowhere"}, db.Hosts(), "group members may reference unknown hosts")
}

func (s *StoreTestSuite) TestLoadWarnings() {
	path := s.writeFile("warn.conf", strings.Join([]string{
		"host name=h1 color=blue",
		"machine host=h1 name=vm1 user=root",
		"machine host=h1 name=vm2 group=web password=x",
		"machine host=h1 name=vm3 name=vm4",
	}, "\n"))

	res, err := s.store.Load(s.ctx, path)
	s.Require().NoError(err)
	s.Equal(1, res.Machines)
	s.Require().Len(res.Warnings, 4)
	s.Equal(1, res.Warnings[0].Line)
	s.Contains(res.Warnings[0].Message, "Undefined parameter 'color'")
	s.Equal(4, res.Warnings[1].Line)
	s.Equal(2, res.Warnings[2].Line)
	s.Equal(3, res.Warnings[3].Line)

	env, _ := s.registry.topo.Environment("h1")
	s.Equal([]string{"vm3"}, env.MachineNames())
	_, ok := s.registry.topo.Group("web")
	s.False(ok, "a rejected group line does not create the group")
}

func (s *StoreTestSuite) TestLoadUnreachableHostKept() {
	s.platform.SetUnreachable("h2", true)
	path := s.writeFile("down.conf", "host name=h2\nmachine host=h2 name=vm1\n")

	res, err := s.store.Load(s.ctx, path)
	s.Require().NoError(err)
	s.Equal(1, res.Hosts)
	s.Equal(1, res.Machines)
	s.Len(res.Warnings, 1)

	env, ok := s.registry.topo.Environment("h2")
	s.Require().True(ok)
	s.False(env.Connected())
}

func (s *StoreTestSuite) TestLoadRollback() {
	base := s.writeFile("base.conf", "host name=h1\nmachine host=h1 name=vm1\nmachine host=h1 name=vm1 group=web\n")
	_, err := s.store.Load(s.ctx, base)
	s.Require().NoError(err)
	s.Require().NoError(s.registry.topo.SetActive("h1"))

	var before bytes.Buffer
	s.Require().NoError(configstore.WriteTo(&before, s.registry.topo))

	tests := []struct {
		description  string
		content      string
		expectedLine int
	}{
		{"undefined host", "host name=h2\nmachine host=h2 name=a group=web\nmachine host=ghost name=vm9\n", 3},
		{"bad keyword", "host name=h3\nvm host=h3 name=x\n", 2},
		{"host in group", "host name=h4 group=web\n", 1},
		{"machine with port", "host name=h5\nmachine host=h5 name=x port=1\n", 2},
		{"bad port", "host name=h6 port=abc\n", 1},
		{"missing name", "machine host=h1\n", 1},
	}

	for _, test := range tests {
		path := s.writeFile("bad.conf", test.content)
		_, err := s.store.Load(s.ctx, path)
		s.Error(err, test.description)

		var ce *vmerrors.ClassifiedError
		s.Require().True(errors.As(err, &ce), test.description)
		s.Equal(vmerrors.ConfigParseErrorType, ce.Type, test.description)
		s.Equal(test.expectedLine, ce.Line, test.description)

		var after bytes.Buffer
		s.Require().NoError(configstore.WriteTo(&after, s.registry.topo))
		s.Equal(before.String(), after.String(), test.description)
		s.Equal("h1", s.registry.topo.Active().Name(), test.description)
	}

	s.Equal(1, s.platform.DisconnectCount("h2"), "hosts added by a rolled back load are disconnected")
}

func (s *StoreTestSuite) TestLoadMissingFile() {
	_, err := s.store.Load(s.ctx, filepath.Join(s.dir, "missing.conf"))
	s.True(errors.Is(err, vmerrors.ErrConfigParse))
}

func (s *StoreTestSuite) TestWriteTo() {
	topo := s.registry.topo
	ep := endpoint.New("10.0.0.7", true)
	ep.Name = "lab"
	ep.User = "admin"
	ep.Password = "secret"
	lab := fleet.NewEnvironment(ep, s.platform, nil)
	s.Require().NoError(topo.AddEnvironment(lab))
	s.Require().NoError(lab.AddMachine("vm2", "", ""))
	s.Require().NoError(lab.AddMachine("vm1", "root", "toor"))
	web, _ := topo.EnsureGroup("web")
	s.Require().NoError(web.AddMachine("lab", "vm1", "", ""))

	var buf bytes.Buffer
	s.Require().NoError(configstore.WriteTo(&buf, topo))
	s.Equal(strings.Join([]string{
		"host name=lab address=10.0.0.7 port=18083 user=admin password=secret",
		"machine host=lab name=vm1 user=root password=toor",
		"machine host=lab name=vm2",
		"machine host=lab name=vm1 group=web",
		"",
	}, "\n"), buf.String())
}

func (s *StoreTestSuite) TestSaveRoundTrip() {
	path := s.writeFile("fleet.conf", strings.Join([]string{
		"host name=alpha port=18083 user=admin password=pw",
		"host name=beta address=10.1.1.1 port=9000",
		"machine host=alpha name=web1 user=admin password=pw1",
		"machine host=beta name=db1",
		"machine host=alpha name=web1 group=web",
		"machine host=beta name=db1 group=all user=u password=p",
	}, "\n"))
	_, err := s.store.Load(s.ctx, path)
	s.Require().NoError(err)

	saved := filepath.Join(s.dir, "saved.conf")
	s.Require().NoError(configstore.Save(saved, s.registry.topo))

	var first bytes.Buffer
	s.Require().NoError(configstore.WriteTo(&first, s.registry.topo))

	other := &registry{topo: fleet.NewTopology(), platform: s.platform}
	_, err = configstore.New(other, nil).Load(s.ctx, saved)
	s.Require().NoError(err)

	var second bytes.Buffer
	s.Require().NoError(configstore.WriteTo(&second, other.topo))
	s.Equal(first.String(), second.String())
}

func (s *StoreTestSuite) TestSaveQuotesValues() {
	ep := endpoint.New("h1", true)
	ep.User = "admin"
	ep.Password = "my secret"
	s.Require().NoError(s.registry.AddHost(s.ctx, ep))
	env, _ := s.registry.topo.Environment("h1")
	s.Require().NoError(env.AddMachine("vm1", "root", "it's here"))
	web, _ := s.registry.topo.EnsureGroup("web")
	s.Require().NoError(web.AddMachine("h1", "vm2", "svc", "pass word"))

	var out bytes.Buffer
	s.Require().NoError(configstore.WriteTo(&out, s.registry.topo))
	s.Contains(out.String(), "'password=my secret'")

	saved := filepath.Join(s.dir, "saved.conf")
	s.Require().NoError(configstore.Save(saved, s.registry.topo))

	other := &registry{topo: fleet.NewTopology(), platform: s.platform}
	_, err := configstore.New(other, nil).Load(s.ctx, saved)
	s.Require().NoError(err)

	loaded, ok := other.topo.Environment("h1")
	s.Require().True(ok)
	s.Equal("my secret", loaded.Password())
	creds, _ := loaded.Machine("vm1")
	s.Equal("it's here", creds.Password)

	group, ok := other.topo.Group("web")
	s.Require().True(ok)
	creds, _ = group.Machine("h1", "vm2")
	s.Equal("pass word", creds.Password)
}

func (s *StoreTestSuite) TestSaveUnwritable() {
	err := configstore.Save(filepath.Join(s.dir, "missing", "fleet.conf"), s.registry.topo)
	s.True(errors.Is(err, vmerrors.ErrExecution))
}
