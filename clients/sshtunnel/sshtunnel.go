package sshtunnel

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type Endpoint struct {
	Host string
	Port int
	User string
}

// ParseEndpoint parses "[user@]host[:port]".
func ParseEndpoint(s string) *Endpoint {
	endpoint := &Endpoint{
		Host: s,
	}
	if parts := strings.SplitN(endpoint.Host, "@", 2); len(parts) > 1 {
		endpoint.User = parts[0]
		endpoint.Host = parts[1]
	}
	if host, port, err := net.SplitHostPort(endpoint.Host); err == nil {
		endpoint.Host = host
		endpoint.Port, _ = strconv.Atoi(port)
	}
	return endpoint
}

func (endpoint *Endpoint) String() string {
	return net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port))
}

// SSHTunnel forwards connections accepted on a local port through an ssh server to a remote address.
type SSHTunnel struct {
	Local  *Endpoint
	Server *Endpoint
	Remote *Endpoint
	Config *ssh.ClientConfig
	Log    logrus.FieldLogger

	mutex    sync.Mutex
	listener net.Listener
}

func (tunnel *SSHTunnel) logf(format string, args ...interface{}) {
	if tunnel.Log != nil {
		tunnel.Log.Debugf(format, args...)
	}
}

func (tunnel *SSHTunnel) Start() error {
	tunnel.mutex.Lock()
	defer tunnel.mutex.Unlock()

	if tunnel.listener != nil {
		return fmt.Errorf("already running")
	}
	listener, err := net.Listen("tcp", tunnel.Local.String())
	if err != nil {
		return err
	}
	tunnel.listener = listener
	tunnel.Local.Port = listener.Addr().(*net.TCPAddr).Port

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				tunnel.logf("tunnel listener closed: %v", err)
				return
			}
			go tunnel.forward(conn)
		}
	}()
	return nil
}

func (tunnel *SSHTunnel) Stop() {
	tunnel.mutex.Lock()
	defer tunnel.mutex.Unlock()

	if tunnel.listener != nil {
		tunnel.listener.Close()
		tunnel.listener = nil
	}
}

func (tunnel *SSHTunnel) forward(localConn net.Conn) {
	serverConn, err := ssh.Dial("tcp", tunnel.Server.String(), tunnel.Config)
	if err != nil {
		tunnel.logf("server dial error: %v", err)
		localConn.Close()
		return
	}
	remoteConn, err := serverConn.Dial("tcp", tunnel.Remote.String())
	if err != nil {
		tunnel.logf("remote dial error: %v", err)
		localConn.Close()
		serverConn.Close()
		return
	}

	var wg sync.WaitGroup
	copyConn := func(writer, reader net.Conn) {
		defer wg.Done()
		if _, err := io.Copy(writer, reader); err != nil {
			tunnel.logf("tunnel copy error: %v", err)
		}
		localConn.Close()
		remoteConn.Close()
	}
	wg.Add(2)
	go copyConn(localConn, remoteConn)
	go copyConn(remoteConn, localConn)

	wg.Wait()
	serverConn.Close()
}

func PrivateKeyFile(file string) (ssh.AuthMethod, error) {
	buffer, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	key, err := ssh.ParsePrivateKey(buffer)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(key), nil
}

// HostKeyCallback verifies server keys against a known_hosts file. Without a file every key is accepted.
func HostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(knownHostsFile)
}

// NewSSHTunnel creates a tunnel from a random local port through server ("user@host:port") to destination.
func NewSSHTunnel(server string, auth ssh.AuthMethod, hostKeyCallback ssh.HostKeyCallback, destination string) *SSHTunnel {
	serverEndpoint := ParseEndpoint(server)
	if serverEndpoint.Port == 0 {
		serverEndpoint.Port = 22
	}
	return &SSHTunnel{
		Config: &ssh.ClientConfig{
			User:            serverEndpoint.User,
			Auth:            []ssh.AuthMethod{auth},
			HostKeyCallback: hostKeyCallback,
		},
		Local:  &Endpoint{Host: "localhost"},
		Server: serverEndpoint,
		Remote: ParseEndpoint(destination),
	}
}
