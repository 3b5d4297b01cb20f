package serial

import (
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/knieriem/text/rc"
)

type cmd struct {
	*exec.Cmd
}

// parseCommand recognizes device specs of the form "!cmd args...",
// tokenized using rc quoting rules.
func parseCommand(spec string) (c *cmd, match bool) {
	if !strings.HasPrefix(spec, "!") {
		return
	}
	args := rc.Tokenize(spec[1:])
	if len(args) == 0 {
		return
	}
	match = true
	c = new(cmd)
	c.Cmd = exec.Command(args[0], args[1:]...)
	return
}

type cmdConn struct {
	io.Reader
	io.WriteCloser
	cmd *exec.Cmd
}

// Close closes the command's standard input, terminates it,
// and waits for it to exit.
func (c *cmdConn) Close() error {
	err := c.WriteCloser.Close()
	if p := c.cmd.Process; p != nil {
		p.Kill()
	}
	c.cmd.Wait()
	return err
}

func (c *cmd) Dial() (f io.ReadWriteCloser, err error) {
	w, err := c.StdinPipe()
	if err != nil {
		return
	}
	r, err := c.StdoutPipe()
	if err != nil {
		return
	}
	c.Stderr = os.Stderr
	err = c.Start()
	if err != nil {
		return
	}
	f = &cmdConn{Reader: r, WriteCloser: w, cmd: c.Cmd}
	return
}
