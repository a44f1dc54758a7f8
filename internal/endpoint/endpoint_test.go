package endpoint_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"vmplex/internal/endpoint"
)

type EndpointTestSuite struct {
	suite.Suite
}

func TestEndpointTestSuite(t *testing.T) {
	suite.Run(t, new(EndpointTestSuite))
}

func (s *EndpointTestSuite) TestNew() {
	ep := endpoint.New("vbox1", true)
	s.Equal("vbox1", ep.Name)
	s.Equal(endpoint.DefaultPort, ep.Port)
	s.True(ep.Remote)
	s.Equal("http://vbox1:18083/", ep.URL())
}

func (s *EndpointTestSuite) TestURLIPv6() {
	ep := endpoint.New("::1", true)
	s.Equal("http://[::1]:18083/", ep.URL())
}

func (s *EndpointTestSuite) TestDisplayName() {
	ep := endpoint.Endpoint{Host: "10.0.0.5"}
	s.Equal("10.0.0.5", ep.DisplayName())
	ep.Name = "lab"
	s.Equal("lab", ep.DisplayName())
}

func (s *EndpointTestSuite) TestValidate() {
	tests := []struct {
		description string
		ep          endpoint.Endpoint
		expectedErr bool
	}{
		{"valid", endpoint.New("vbox1", true), false},
		{"empty host", endpoint.Endpoint{Port: 1}, true},
		{"host with space", endpoint.Endpoint{Host: "a b", Port: 1}, true},
		{"port zero", endpoint.Endpoint{Host: "a", Port: 0}, true},
		{"port too large", endpoint.Endpoint{Host: "a", Port: 70000}, true},
		{"user without password", endpoint.Endpoint{Host: "a", Port: 1, User: "admin"}, false},
	}

	for _, test := range tests {
		err := test.ep.Validate()
		if test.expectedErr {
			s.Error(err, test.description)
		} else {
			s.NoError(err, test.description)
		}
	}
}

func (s *EndpointTestSuite) TestParsePort() {
	tests := []struct {
		description string
		input       string
		expected    int
		expectedErr bool
	}{
		{"plain", "18083", 18083, false},
		{"padded", " 22 ", 22, false},
		{"not a number", "abc", 0, true},
		{"zero", "0", 0, true},
		{"too large", "65536", 0, true},
	}

	for _, test := range tests {
		port, err := endpoint.ParsePort(test.input)
		if test.expectedErr {
			s.Error(err, test.description)
			continue
		}
		s.NoError(err, test.description)
		s.Equal(test.expected, port, test.description)
	}
}

func (s *EndpointTestSuite) TestParseOpts() {
	tests := []struct {
		description string
		input       string
		expected    map[string]string
		expectedErr bool
	}{
		{"empty", "", map[string]string{}, false},
		{"full", "host=vbox1,port=1000,user=admin,password=pw,name=lab",
			map[string]string{"host": "vbox1", "port": "1000", "user": "admin", "password": "pw", "name": "lab"}, false},
		{"case and spaces", " HOST = vbox1 ,", map[string]string{"host": "vbox1"}, false},
		{"not key value", "host", nil, true},
		{"unknown key", "color=red", nil, true},
		{"duplicate", "host=a,host=b", nil, true},
	}

	for _, test := range tests {
		opts, err := endpoint.ParseOpts(test.input)
		if test.expectedErr {
			s.Error(err, test.description)
			continue
		}
		s.NoError(err, test.description)
		s.Equal(test.expected, opts, test.description)
	}
}

func (s *EndpointTestSuite) TestFromOpts() {
	ep, err := endpoint.FromOpts(map[string]string{}, false)
	s.NoError(err)
	s.Equal(endpoint.DefaultHost, ep.Host)
	s.Equal(endpoint.DefaultHost, ep.Name)
	s.False(ep.Remote)

	ep, err = endpoint.FromOpts(map[string]string{"host": "vbox1", "port": "9000", "user": "u", "password": "p", "name": "lab"}, true)
	s.NoError(err)
	s.Equal("lab", ep.Name)
	s.Equal("vbox1", ep.Host)
	s.Equal(9000, ep.Port)
	s.Equal("u", ep.User)
	s.Equal("p", ep.Password)

	_, err = endpoint.FromOpts(map[string]string{"port": "x"}, true)
	s.Error(err)
}
