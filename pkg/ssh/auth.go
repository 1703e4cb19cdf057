package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Credentials 单跳认证材料
type Credentials struct {
	Password string
	KeyFiles []string
	// KeysOnly 仅使用密钥（文件与 agent），不尝试密码
	KeysOnly bool
	// DisableAgent 不读取 SSH_AUTH_SOCK
	DisableAgent bool
}

// authMethods 按 密钥文件 → agent → password → keyboard-interactive 顺序组装
// 返回的 closer 释放 agent 连接
func authMethods(creds Credentials) ([]ssh.AuthMethod, func(), error) {
	var methods []ssh.AuthMethod
	closer := func() {}

	var signers []ssh.Signer
	if len(creds.KeyFiles) > 0 {
		loaded, err := loadSigners(creds.KeyFiles, creds.Password)
		if err != nil {
			return nil, closer, err
		}
		signers = loaded
	}

	var agentClient agent.ExtendedAgent
	if !creds.DisableAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if conn, err := net.Dial("unix", sock); err == nil {
				agentClient = agent.NewClient(conn)
				closer = func() { conn.Close() }
			}
		}
	}

	// 同名方法失败后不会再被尝试，密钥文件与 agent 合并为一个 publickey 方法
	if len(signers) > 0 || agentClient != nil {
		methods = append(methods, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			all := append([]ssh.Signer(nil), signers...)
			if agentClient != nil {
				if fromAgent, err := agentClient.Signers(); err == nil {
					all = append(all, fromAgent...)
				}
			}
			return all, nil
		}))
	}

	if !creds.KeysOnly && creds.Password != "" {
		password := creds.Password
		methods = append(methods,
			ssh.Password(password),
			// 网络设备常用 keyboard-interactive，统一以密码应答
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		closer()
		return nil, func() {}, errors.New("no authentication method available: supply a password, a key file, or an ssh-agent key")
	}
	return methods, closer, nil
}

// loadSigners 解析私钥文件，带口令的私钥以设备密码尝试解密
func loadSigners(paths []string, passphrase string) ([]ssh.Signer, error) {
	signers := make([]ssh.Signer, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(expandHome(p))
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", p, err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file %s: %w", p, err)
		}
		signers = append(signers, signer)
	}
	return signers, nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
