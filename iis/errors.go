package iis

import (
	"time"

	"github.com/cockroachdb/errors"

	"iisctl/store"
	"iisctl/util"
)

// 错误类型，调用方使用 errors.Is 判断
var (
	// ErrValidation 必填字段缺失或格式错误
	ErrValidation = errors.New("参数无效")
	// ErrConflict 绑定或应用路径重复
	ErrConflict = errors.New("配置冲突")
	// ErrNotFound 依赖的站点、应用或应用程序池不存在
	ErrNotFound = errors.New("对象不存在")
	// ErrUnsupported 配置存储缺少所需的配置节
	ErrUnsupported = errors.New("不支持的操作")
	// ErrTransientStoreFault IIS 尚未应用刚提交的配置
	ErrTransientStoreFault = store.ErrTransient
)

// TransientRetryDelay 遇到 ErrTransientStoreFault 后的等待时间
var TransientRetryDelay = time.Second

func validationErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

func conflictErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConflict)
}

func notFoundErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func unsupportedErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupported)
}

// runTransition 执行状态切换，配置尚未生效时等待一次并视为成功
func runTransition(fn func(string) error, name string) error {
	err := fn(name)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientStoreFault) {
		util.Info("等待 IIS 应用新配置...")
		time.Sleep(TransientRetryDelay)
		return nil
	}
	return err
}
