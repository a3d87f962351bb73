package remote

import (
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/labrig-project/labrig/pkg/errkind"
)

// SSHTunnel forwards a local TCP port to a remote module server's address
// through an SSH connection, for reaching a peer behind a bastion or a lab
// network with no direct route to the module's websocket port.
type SSHTunnel struct {
	localAddr string
	sshClient *ssh.Client
	listener  net.Listener
	remote    string
	done      chan struct{}
	wg        sync.WaitGroup
}

// DialSSHTunnel opens an SSH connection to sshAddr authenticating as user
// with the private key at keyFile, then opens a local listener that
// forwards every accepted connection to remoteAddr (address:port of the
// module server) through that connection.
func DialSSHTunnel(sshAddr, user, keyFile, remoteAddr string) (*SSHTunnel, error) {
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, &errkind.IOError{Path: keyFile, Err: err}
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, &errkind.ParseError{Path: keyFile, Err: err}
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	sshClient, err := ssh.Dial("tcp", sshAddr, config)
	if err != nil {
		return nil, &errkind.RemoteError{Peer: sshAddr, Kind: "ssh_dial", Message: err.Error()}
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		sshClient.Close()
		return nil, &errkind.IOError{Path: "127.0.0.1:0", Err: err}
	}

	t := &SSHTunnel{
		localAddr: listener.Addr().String(),
		sshClient: sshClient,
		listener:  listener,
		remote:    remoteAddr,
		done:      make(chan struct{}),
	}
	t.wg.Add(1)
	go t.acceptLoop()
	return t, nil
}

// LocalAddr is the loopback address a Client should Dial instead of the
// module's declared address.
func (t *SSHTunnel) LocalAddr() string { return t.localAddr }

// Close stops accepting new connections, tears down the SSH connection
// (unblocking any forwarding goroutines waiting on a remote read), and
// waits for them to finish.
func (t *SSHTunnel) Close() error {
	close(t.done)
	t.listener.Close()
	t.sshClient.Close()
	t.wg.Wait()
	return nil
}

func (t *SSHTunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *SSHTunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.sshClient.Dial("tcp", t.remote)
	if err != nil {
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}
