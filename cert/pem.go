package cert

import (
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/youmark/pkcs8"
)

// LoadPEM 读取 PEM 证书（可含中间证书链）和私钥
func LoadPEM(certPath, keyPath, keyPassword string) (*Bundle, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, errors.Wrapf(err, "读取证书文件失败: %s", certPath)
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.Wrapf(err, "读取私钥文件失败: %s", keyPath)
	}
	return ParsePEM(certData, keyData, keyPassword)
}

// ParsePEM 解析 PEM 证书链和私钥，第一个证书为叶子证书
func ParsePEM(certPEM, keyPEM []byte, keyPassword string) (*Bundle, error) {
	certs, err := parseCertificates(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKeyFromPEM(keyPEM, keyPassword)
	if err != nil {
		return nil, errors.Wrap(err, "解析私钥失败")
	}

	b := &Bundle{Certificate: certs[0], PrivateKey: key, CACerts: certs[1:]}
	if err := b.CheckKeyPair(); err != nil {
		return nil, err
	}
	return b, nil
}

func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		data = rest
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "解析证书失败")
		}
		certs = append(certs, c)
	}
	if len(certs) == 0 {
		return nil, errors.New("无法解析证书 PEM")
	}
	return certs, nil
}

func parsePrivateKeyFromPEM(data []byte, password string) (interface{}, error) {
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		data = rest
		if isPrivateKeyBlockType(block.Type) {
			return parsePrivateKeyBlock(block, password)
		}
	}
	return nil, errors.New("无法解析私钥 PEM")
}

func isPrivateKeyBlockType(blockType string) bool {
	switch blockType {
	case "RSA PRIVATE KEY", "EC PRIVATE KEY", "PRIVATE KEY", "ENCRYPTED PRIVATE KEY":
		return true
	default:
		return false
	}
}

func parsePrivateKeyBlock(block *pem.Block, password string) (interface{}, error) {
	if block.Type == "ENCRYPTED PRIVATE KEY" {
		if password == "" {
			return nil, errors.New("私钥已加密，缺少密码")
		}
		key, _, err := pkcs8.ParsePrivateKey(block.Bytes, []byte(password))
		if err != nil {
			return nil, errors.Wrap(err, "解密 PKCS#8 私钥失败")
		}
		return key, nil
	}

	der := block.Bytes
	// 旧式 PEM 加密（Proc-Type: 4,ENCRYPTED）需先解密再按 block.Type 解析
	if _, encrypted := block.Headers["DEK-Info"]; encrypted {
		if password == "" {
			return nil, errors.New("私钥已加密，缺少密码")
		}
		//nolint:staticcheck // 旧式 PEM 加密没有替代的解密方式
		decrypted, err := x509.DecryptPEMBlock(block, []byte(password))
		if err != nil {
			return nil, errors.Wrap(err, "私钥解密失败")
		}
		der = decrypted
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(der)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(der)
	default:
		return x509.ParsePKCS8PrivateKey(der)
	}
}
