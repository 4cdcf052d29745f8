package cert

import (
	"crypto"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"software.sslmate.com/src/go-pkcs12"
)

// ErrKeyMismatch 证书与私钥不匹配
var ErrKeyMismatch = errors.New("证书与私钥不匹配")

// Bundle 证书、私钥和中间证书链
type Bundle struct {
	Certificate *x509.Certificate
	PrivateKey  interface{}
	CACerts     []*x509.Certificate
}

// Thumbprint 证书指纹（SHA-1，大写十六进制），与 IIS 绑定中的 certificateHash 格式一致
func Thumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Thumbprint 叶子证书指纹
func (b *Bundle) Thumbprint() string {
	return Thumbprint(b.Certificate)
}

// CheckKeyPair 比较证书公钥与私钥
func (b *Bundle) CheckKeyPair() error {
	signer, ok := b.PrivateKey.(crypto.Signer)
	if !ok {
		return errors.Newf("不支持的私钥类型: %T", b.PrivateKey)
	}
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(b.Certificate.PublicKey) {
		return errors.Wrapf(ErrKeyMismatch, "证书 %s", b.Thumbprint())
	}
	return nil
}

// Expired 证书在 now 时是否已过期或尚未生效
func (b *Bundle) Expired(now time.Time) bool {
	return now.Before(b.Certificate.NotBefore) || now.After(b.Certificate.NotAfter)
}

// LoadPFX 读取 PFX 文件
func LoadPFX(path, password string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取 PFX 文件失败: %s", path)
	}
	key, leaf, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "解析 PFX 文件失败: %s", path),
			"请确认密码正确且文件未损坏")
	}
	return &Bundle{Certificate: leaf, PrivateKey: key, CACerts: caCerts}, nil
}

// EncodePFX 将证书包编码为 PFX
func EncodePFX(b *Bundle, password string) ([]byte, error) {
	data, err := pkcs12.Modern.Encode(b.PrivateKey, b.Certificate, b.CACerts, password)
	if err != nil {
		return nil, errors.Wrap(err, "生成 PFX 失败")
	}
	return data, nil
}

// writeTempPFX 将证书包写入临时 PFX 文件，调用方负责删除
func writeTempPFX(b *Bundle, password string) (string, error) {
	data, err := EncodePFX(b, password)
	if err != nil {
		return "", err
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("iisctl_%s.pfx", generateRandomString(8)))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", errors.Wrap(err, "写入 PFX 文件失败")
	}
	return path, nil
}

// generateRandomString 生成随机字符串
func generateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
