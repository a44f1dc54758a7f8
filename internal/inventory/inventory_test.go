package inventory_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"vmplex/internal/configstore"
	vmerrors "vmplex/internal/errors"
	"vmplex/internal/inventory"
)

const sampleInventory = `all:
  hosts:
    vbox1:
      ansible_host: 10.0.0.5
      vbox_port: 18083
      vbox_user: admin
      vbox_password: secret
      vbox_machines:
        web1: {user: root, password: toor}
        web2:
    vbox2:
  children:
    web:
      hosts:
        vbox1:
          vbox_machines:
            web1:
            web2:
      children:
        canary:
          hosts:
            vbox2:
              vbox_machines:
                web9: {user: u, password: p}
db:
  hosts:
    vbox2:
      vbox_machines:
        db1:
`

type InventoryTestSuite struct {
	suite.Suite
	dir string
}

func TestInventoryTestSuite(t *testing.T) {
	suite.Run(t, new(InventoryTestSuite))
}

func (s *InventoryTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *InventoryTestSuite) writeFile(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *InventoryTestSuite) TestLoadInventoryFromFile() {
	tests := []struct {
		description string
		path        string
		expectedErr bool
	}{
		{"yaml", "hosts.yaml", false},
		{"yml", "hosts.yml", false},
		{"json", "hosts.JSON", false},
		{"ini", "hosts.ini", true},
		{"no extension", "hosts", true},
	}

	for _, test := range tests {
		inv, err := inventory.LoadInventoryFromFile(test.path)
		if test.expectedErr {
			s.Error(err, test.description)
			s.True(errors.Is(err, vmerrors.ErrInvalidArgument), test.description)
			continue
		}
		s.NoError(err, test.description)
		s.Equal(test.path, inv.Path(), test.description)
	}
}

func (s *InventoryTestSuite) TestRecords() {
	inv := inventory.NewAnsibleInventory(s.writeFile("hosts.yaml", sampleInventory))

	records, err := inv.Records()
	s.Require().NoError(err)

	type summary struct {
		kind   string
		params map[string]string
	}
	var got []summary
	for _, rec := range records {
		got = append(got, summary{rec.Kind, rec.Params})
	}

	s.Equal([]summary{
		{configstore.KindHost, map[string]string{"name": "vbox1", "address": "10.0.0.5", "port": "18083", "user": "admin", "password": "secret"}},
		{configstore.KindMachine, map[string]string{"host": "vbox1", "name": "web1", "user": "root", "password": "toor"}},
		{configstore.KindMachine, map[string]string{"host": "vbox1", "name": "web2"}},
		{configstore.KindHost, map[string]string{"name": "vbox2"}},
		{configstore.KindMachine, map[string]string{"host": "vbox2", "name": "web9", "group": "canary", "user": "u", "password": "p"}},
		{configstore.KindMachine, map[string]string{"host": "vbox2", "name": "db1", "group": "db"}},
		{configstore.KindMachine, map[string]string{"host": "vbox1", "name": "web1", "group": "web"}},
		{configstore.KindMachine, map[string]string{"host": "vbox1", "name": "web2", "group": "web"}},
	}, got)

	s.Positive(records[0].Line)
	s.Equal(records[0].Line, records[1].Line, "machine records point at their host entry")
}

func (s *InventoryTestSuite) TestGroups() {
	inv := inventory.NewAnsibleInventory(s.writeFile("hosts.yml", sampleInventory))

	groups, err := inv.Groups()
	s.Require().NoError(err)
	s.Equal([]string{"canary", "db", "web"}, groups)
}

func (s *InventoryTestSuite) TestJSON() {
	inv := inventory.NewAnsibleInventory(s.writeFile("hosts.json",
		`{"all": {"hosts": {"vbox1": {"vbox_port": 9000}}}, "lab": {"hosts": {"vbox1": {"vbox_machines": {"vm1": null}}}}}`))

	records, err := inv.Records()
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal("9000", records[0].Get(configstore.KeyPort))
	s.Equal("lab", records[1].Get(configstore.KeyGroup))
}

func (s *InventoryTestSuite) TestErrors() {
	_, err := inventory.NewAnsibleInventory(filepath.Join(s.dir, "missing.yaml")).Records()
	s.True(errors.Is(err, vmerrors.ErrConfigParse))

	_, err = inventory.NewAnsibleInventory(s.writeFile("broken.yaml", "all: [unclosed")).Records()
	s.True(errors.Is(err, vmerrors.ErrConfigParse))

	_, err = inventory.NewAnsibleInventory(s.writeFile("badport.yaml", "all:\n  hosts:\n    vbox1:\n      vbox_port: abc\n")).Records()
	var ce *vmerrors.ClassifiedError
	s.Require().True(errors.As(err, &ce))
	s.Equal(vmerrors.ConfigParseErrorType, ce.Type)
	s.Positive(ce.Line)
}
