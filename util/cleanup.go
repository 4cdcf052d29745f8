package util

import (
	"os"
	"time"
)

// cleanupRetryDelay 删除重试间隔
var cleanupRetryDelay = time.Second

// RemoveTempFile 删除临时文件（带重试）
// 证书导入后 PowerShell 进程可能仍短暂占用 PFX 文件，最多重试 3 次
// 返回 true 表示删除成功或文件不存在
func RemoveTempFile(path string) bool {
	if path == "" {
		return true
	}

	for i := 0; i < 3; i++ {
		if i > 0 {
			time.Sleep(cleanupRetryDelay)
		}

		if err := os.Remove(path); err == nil {
			return true
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			return true
		}
	}

	Warn("无法删除临时文件 %s", path)
	return false
}
