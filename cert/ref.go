package cert

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"iisctl/util"
)

// ErrInvalidReference 证书引用缺少来源或同时指定了多个来源
var ErrInvalidReference = errors.New("无效的证书引用")

// CertificateRef https 绑定使用的证书
//
// Thumbprint、PFXPath、CertPEMPath 三者选一。只给出指纹时证书必须已在存储中；
// 文件来源在 Install 为 true 时先导入存储。
type CertificateRef struct {
	Thumbprint  string `yaml:"thumbprint,omitempty"`
	StoreName   string `yaml:"storeName,omitempty"`
	PFXPath     string `yaml:"pfx,omitempty"`
	PFXPassword string `yaml:"pfxPassword,omitempty"`
	CertPEMPath string `yaml:"certPem,omitempty"`
	KeyPEMPath  string `yaml:"keyPem,omitempty"`
	KeyPassword string `yaml:"keyPassword,omitempty"`
	Install     bool   `yaml:"install,omitempty"`
}

func (r *CertificateRef) sources() int {
	n := 0
	for _, s := range []string{r.Thumbprint, r.PFXPath, r.CertPEMPath} {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

// Validate 检查来源唯一且完整
func (r *CertificateRef) Validate() error {
	switch r.sources() {
	case 0:
		return errors.Wrap(ErrInvalidReference, "需要指定 thumbprint、pfx 或 certPem")
	case 1:
	default:
		return errors.Wrap(ErrInvalidReference, "thumbprint、pfx、certPem 只能指定一个")
	}
	if r.CertPEMPath != "" && r.KeyPEMPath == "" {
		return errors.Wrap(ErrInvalidReference, "certPem 需要同时指定 keyPem")
	}
	if r.Thumbprint != "" {
		if err := util.ValidateThumbprint(r.Thumbprint); err != nil {
			return errors.Mark(errors.Wrap(err, "无效的证书指纹"), ErrInvalidReference)
		}
		if r.Install {
			return errors.Wrap(ErrInvalidReference, "只有文件来源的证书可以安装")
		}
	}
	return nil
}

// Resolver 将证书引用解析为绑定使用的指纹和存储名
type Resolver struct {
	Installer Installer
	// Now 用于过期检查，为 nil 时使用 time.Now
	Now func() time.Time
}

// NewResolver 使用本机 PowerShell 安装器
func NewResolver() *Resolver {
	return &Resolver{Installer: NewPowerShellInstaller()}
}

// Resolve 使用默认解析器解析证书引用
func Resolve(ref *CertificateRef) (hash, storeName string, err error) {
	return NewResolver().Resolve(ref)
}

// Resolve 返回证书指纹和存储名，ref 为 nil 时返回空值
func (r *Resolver) Resolve(ref *CertificateRef) (hash, storeName string, err error) {
	if ref == nil {
		return "", "", nil
	}
	if err := ref.Validate(); err != nil {
		return "", "", err
	}
	storeName = ref.StoreName
	if storeName == "" {
		storeName = DefaultStoreName
	}

	if ref.Thumbprint != "" {
		hash, err = util.NormalizeThumbprint(ref.Thumbprint)
		return hash, storeName, err
	}

	var bundle *Bundle
	if ref.PFXPath != "" {
		bundle, err = LoadPFX(ref.PFXPath, ref.PFXPassword)
	} else {
		bundle, err = LoadPEM(ref.CertPEMPath, ref.KeyPEMPath, ref.KeyPassword)
	}
	if err != nil {
		return "", "", err
	}

	hash = bundle.Thumbprint()
	if bundle.Expired(r.now()) {
		util.Warn("证书 %s 不在有效期内 (%s ~ %s)", hash,
			bundle.Certificate.NotBefore.Format("2006-01-02"), bundle.Certificate.NotAfter.Format("2006-01-02"))
	}
	if !ref.Install {
		return hash, storeName, nil
	}

	installed, err := r.install(ref, bundle, storeName)
	if err != nil {
		return "", "", err
	}
	if installed != hash {
		return "", "", errors.Newf("导入的证书指纹 %s 与文件中的证书 %s 不一致", installed, hash)
	}
	return hash, storeName, nil
}

func (r *Resolver) install(ref *CertificateRef, bundle *Bundle, storeName string) (string, error) {
	if r.Installer == nil {
		return "", errors.New("未配置证书安装器")
	}
	if ref.PFXPath != "" {
		return r.Installer.InstallPFX(ref.PFXPath, ref.PFXPassword, storeName)
	}

	password := generateRandomString(16)
	path, err := writeTempPFX(bundle, password)
	if err != nil {
		return "", err
	}
	defer util.RemoveTempFile(path)
	return r.Installer.InstallPFX(path, password, storeName)
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
