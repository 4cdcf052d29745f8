package store

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNetshBindingOutput = `
SSL Certificate bindings:
-------------------------

    IP:port                      : 0.0.0.0:443
    Certificate Hash             : ABC123DEF456789012345678901234567890ABCD
    Application ID               : {4dc3e181-e14b-4a21-b022-59fc669b0914}
    Certificate Store Name       : My

    Hostname:port                : www.example.com:443
    Certificate Hash             : DEF456789012345678901234567890ABCDEF1234
    Application ID               : {4dc3e181-e14b-4a21-b022-59fc669b0914}
    Certificate Store Name       : My
`

const testNetshChineseOutput = `
SSL 证书绑定:
-------------------------

    主机名:端口                  : www.example.com:443
    证书哈希                     : def456789012345678901234567890abcdef1234
    应用程序 ID                  : {4dc3e181-e14b-4a21-b022-59fc669b0914}
    证书存储名称                 : My
`

func TestParseSSLBindings(t *testing.T) {
	bindings := parseSSLBindings(testNetshBindingOutput)
	require.Len(t, bindings, 2)

	assert.Equal(t, "0.0.0.0:443", bindings[0].Endpoint)
	assert.False(t, bindings[0].SNI)
	assert.Equal(t, "abc123def456789012345678901234567890abcd", bindings[0].CertHash)
	assert.Equal(t, "{4dc3e181-e14b-4a21-b022-59fc669b0914}", bindings[0].AppID)
	assert.Equal(t, "My", bindings[0].CertStoreName)

	assert.Equal(t, "www.example.com:443", bindings[1].Endpoint)
	assert.True(t, bindings[1].SNI)
}

func TestParseSSLBindings_Chinese(t *testing.T) {
	bindings := parseSSLBindings(testNetshChineseOutput)
	require.Len(t, bindings, 1)
	assert.Equal(t, "www.example.com:443", bindings[0].Endpoint)
	assert.True(t, bindings[0].SNI)
	assert.Equal(t, "My", bindings[0].CertStoreName)
}

func TestParseSSLBindings_Empty(t *testing.T) {
	assert.Empty(t, parseSSLBindings("SSL Certificate bindings:\n----\n"))
}

func TestSplitBindingInformation(t *testing.T) {
	tests := []struct {
		name     string
		info     string
		wantIP   string
		wantPort int
		wantHost string
		wantOK   bool
	}{
		{"通配符无主机名", "*:80:", "*", 80, "", true},
		{"带主机名", "*:443:www.example.com", "*", 443, "www.example.com", true},
		{"IPv4", "10.0.0.1:8080:", "10.0.0.1", 8080, "", true},
		{"IPv6", "[::1]:443:api.example.com", "[::1]", 443, "api.example.com", true},
		{"端口非数字", "*:abc:", "", 0, "", false},
		{"仅主机名", "localhost", "", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, port, host, ok := SplitBindingInformation(tt.info)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantIP, ip)
				assert.Equal(t, tt.wantPort, port)
				assert.Equal(t, tt.wantHost, host)
			}
		})
	}
}

func TestSSLBindingFor(t *testing.T) {
	_, ok := sslBindingFor(&Binding{Protocol: "http", BindingInformation: "*:80:"})
	assert.False(t, ok)

	_, ok = sslBindingFor(&Binding{Protocol: "https", BindingInformation: "*:443:"})
	assert.False(t, ok, "未设置证书不需要绑定")

	b, ok := sslBindingFor(&Binding{
		Protocol:             "https",
		BindingInformation:   "*:443:www.example.com",
		CertificateHash:      "ABC123DEF456789012345678901234567890ABCD",
		CertificateStoreName: "WebHosting",
	})
	require.True(t, ok)
	assert.False(t, b.SNI, "未启用 SNI 时按 IP 绑定")
	assert.Equal(t, "0.0.0.0:443", b.Endpoint)
	assert.Equal(t, "WebHosting", b.CertStoreName)
}

func TestNetshBinder_Bind(t *testing.T) {
	var calls []string
	n := &NetshBinder{run: func(name string, args ...string) (string, error) {
		calls = append(calls, strings.Join(args, " "))
		switch args[1] {
		case "delete":
			return "", fmt.Errorf("exit status 1")
		case "add":
			return "SSL Certificate successfully added", nil
		default:
			return testNetshBindingOutput, nil
		}
	}}

	err := n.Bind(SSLBinding{
		Endpoint: "www.example.com:443",
		SNI:      true,
		CertHash: "DEF456789012345678901234567890ABCDEF1234",
	})
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.Equal(t, "http delete sslcert hostnameport=www.example.com:443", calls[0])
	assert.Contains(t, calls[1], "certhash=def456789012345678901234567890abcdef1234")
	assert.Contains(t, calls[1], "appid="+defaultAppID)
	assert.Contains(t, calls[1], "certstorename=MY")
}

func TestNetshBinder_BindMismatch(t *testing.T) {
	n := &NetshBinder{run: func(name string, args ...string) (string, error) {
		if args[1] == "show" {
			return testNetshBindingOutput, nil
		}
		return "", nil
	}}

	err := n.Bind(SSLBinding{Endpoint: "0.0.0.0:443", CertHash: "1111111111111111111111111111111111111111"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "绑定证书不匹配")
}

func TestNetshBinder_InvalidHash(t *testing.T) {
	n := &NetshBinder{run: func(name string, args ...string) (string, error) {
		t.Fatal("无效指纹不应执行 netsh")
		return "", nil
	}}
	assert.Error(t, n.Bind(SSLBinding{Endpoint: "0.0.0.0:443", CertHash: "abc"}))
}
