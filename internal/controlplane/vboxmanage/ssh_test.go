package vboxmanage

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vmplex/internal/endpoint"
)

// agentServer accepts SSH agent connections and tracks how many are open.
type agentServer struct {
	ln     net.Listener
	mu     sync.Mutex
	opened int
	open   int
}

func (a *agentServer) serve() {
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			return
		}
		a.mu.Lock()
		a.opened++
		a.open++
		a.mu.Unlock()

		go func() {
			_, _ = io.Copy(io.Discard, conn)
			conn.Close()
			a.mu.Lock()
			a.open--
			a.mu.Unlock()
		}()
	}
}

func (a *agentServer) counts() (opened, open int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opened, a.open
}

type SSHTestSuite struct {
	suite.Suite
	dir   string
	agent *agentServer
}

func TestSSHTestSuite(t *testing.T) {
	suite.Run(t, new(SSHTestSuite))
}

func (s *SSHTestSuite) SetupTest() {
	// unix socket paths are length-limited, so stay out of the test temp dir
	dir, err := os.MkdirTemp("", "vmplex-agent")
	s.Require().NoError(err)
	s.dir = dir

	sock := filepath.Join(dir, "agent.sock")
	ln, err := net.Listen("unix", sock)
	s.Require().NoError(err)
	s.agent = &agentServer{ln: ln}
	go s.agent.serve()

	s.T().Setenv("SSH_AUTH_SOCK", sock)
}

func (s *SSHTestSuite) TearDownTest() {
	s.agent.ln.Close()
	os.RemoveAll(s.dir)
}

// closedPort returns a local TCP port nothing listens on.
func (s *SSHTestSuite) closedPort() int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func (s *SSHTestSuite) TestFailedDialReleasesAgent() {
	port := s.closedPort()

	for i := 0; i < 5; i++ {
		_, err := dialSSH(context.Background(), endpoint.New("127.0.0.1", true), port, "VBoxManage", nil)
		s.Error(err)
	}

	s.Eventually(func() bool {
		opened, open := s.agent.counts()
		return opened == 5 && open == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *SSHTestSuite) TestCloseReleasesAgent() {
	r := &sshRunner{binary: "VBoxManage", host: "127.0.0.1"}
	config, err := r.buildSSHConfig(endpoint.New("127.0.0.1", true))
	s.Require().NoError(err)
	s.Len(config.Auth, 1)
	s.NotNil(r.agentConn)

	s.NoError(r.Close())
	s.Nil(r.agentConn)

	s.Eventually(func() bool {
		opened, open := s.agent.counts()
		return opened == 1 && open == 0
	}, 2*time.Second, 10*time.Millisecond)
}
