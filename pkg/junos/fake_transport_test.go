package junos

import (
	"context"
	"errors"
	"strings"
)

// fakeTransport 按命令返回预置输出并记录调用
type fakeTransport struct {
	outputs    map[string]string
	failures   map[string]error
	connectErr error
	connected  bool
	closed     int
	connects   int
	calls      []string
	// dropOnFailure 命令失败后会话视为不可用
	dropOnFailure bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		outputs: map[string]string{
			ProbeCommand: "show cli\nCLI screen-length set to 24\n",
		},
		failures: map[string]error{},
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.connects++
	return nil
}

func (f *fakeTransport) Run(ctx context.Context, command string) (string, error) {
	if !f.connected {
		return "", errors.New("not connected")
	}
	f.calls = append(f.calls, command)
	if err, ok := f.failures[command]; ok {
		if f.dropOnFailure {
			f.connected = false
		}
		return "", err
	}
	if out, ok := f.outputs[command]; ok {
		return command + "\n" + out, nil
	}
	return command + "\n" + "error: unknown command: " + strings.Fields(command)[0] + "\n", nil
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) Close() error {
	f.closed++
	f.connected = false
	return nil
}

func (f *fakeTransport) count(command string) int {
	n := 0
	for _, c := range f.calls {
		if c == command {
			n++
		}
	}
	return n
}
