package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"iisctl/util"
)

// Runtime 站点和应用程序池的运行状态切换
type Runtime interface {
	StartSite(name string) error
	StopSite(name string) error
	StartApplicationPool(name string) error
	StopApplicationPool(name string) error
	RecycleApplicationPool(name string) error
}

// 运行时操作名，用于 MemoryRuntime 记录和故障注入
const (
	OpStartSite   = "start site"
	OpStopSite    = "stop site"
	OpStartPool   = "start apppool"
	OpStopPool    = "stop apppool"
	OpRecyclePool = "recycle apppool"
)

// MemoryRuntime 内存运行时，测试和离线编辑使用
type MemoryRuntime struct {
	mu sync.Mutex
	// Fault 返回非 nil 时该次调用失败
	Fault func(op, name string) error
	calls []string
}

// NewMemoryRuntime 创建内存运行时
func NewMemoryRuntime() *MemoryRuntime {
	return &MemoryRuntime{}
}

func (r *MemoryRuntime) do(op, name string) error {
	r.mu.Lock()
	r.calls = append(r.calls, op+" "+name)
	fault := r.Fault
	r.mu.Unlock()

	if fault != nil {
		return fault(op, name)
	}
	return nil
}

// Calls 已执行的调用记录，形如 "start site S1"
func (r *MemoryRuntime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *MemoryRuntime) StartSite(name string) error { return r.do(OpStartSite, name) }

func (r *MemoryRuntime) StopSite(name string) error { return r.do(OpStopSite, name) }

func (r *MemoryRuntime) StartApplicationPool(name string) error { return r.do(OpStartPool, name) }

func (r *MemoryRuntime) StopApplicationPool(name string) error { return r.do(OpStopPool, name) }

func (r *MemoryRuntime) RecycleApplicationPool(name string) error {
	return r.do(OpRecyclePool, name)
}

// TransientFault 返回一个只在前 n 次匹配调用时报告 ErrTransient 的故障函数
func TransientFault(op string, n int) func(string, string) error {
	var mu sync.Mutex
	remaining := n
	return func(gotOp, name string) error {
		if gotOp != op {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if remaining <= 0 {
			return nil
		}
		remaining--
		return errors.Wrapf(ErrTransient, "%s %s", gotOp, name)
	}
}

// transientCodes IIS 在配置刚提交、尚未被 WAS 读取时返回的 HRESULT
var transientCodes = []string{
	"800710d8", // 对象标识符不代表有效对象
	"80070015", // 设备未就绪
}

func isTransientOutput(output string) bool {
	lower := strings.ToLower(output)
	for _, code := range transientCodes {
		if strings.Contains(lower, code) {
			return true
		}
	}
	return false
}

// AppcmdRuntime 通过 appcmd.exe 切换运行状态，远程主机经 PowerShell Invoke-Command 执行
type AppcmdRuntime struct {
	ComputerName string
	AppcmdPath   string

	run   func(name string, args ...string) (string, error)
	runPS func(script string) (string, error)
}

// NewAppcmdRuntime 创建 appcmd 运行时，appcmdPath 为空时使用默认路径
func NewAppcmdRuntime(computerName, appcmdPath string) *AppcmdRuntime {
	if appcmdPath == "" {
		appcmdPath = DefaultAppcmdPath()
	}
	return &AppcmdRuntime{
		ComputerName: computerName,
		AppcmdPath:   appcmdPath,
		run:          util.RunCmdCombined,
		runPS:        util.RunPowerShellCombined,
	}
}

// DefaultAppcmdPath 本机 appcmd.exe 路径
func DefaultAppcmdPath() string {
	return filepath.Join(windowsDir(), "System32", "inetsrv", "appcmd.exe")
}

func windowsDir() string {
	windir := os.Getenv("windir")
	if windir == "" {
		windir = "C:\\Windows"
	}
	return windir
}

func (r *AppcmdRuntime) exec(args ...string) error {
	var output string
	var err error
	if r.ComputerName == "" {
		output, err = r.run(r.AppcmdPath, args...)
	} else {
		quoted := make([]string, len(args))
		for i, a := range args {
			quoted[i] = "'" + util.EscapePowerShellString(a) + "'"
		}
		script := fmt.Sprintf("Invoke-Command -ComputerName '%s' -ScriptBlock { & '%s' %s }",
			util.EscapePowerShellString(r.ComputerName),
			util.EscapePowerShellString(r.AppcmdPath),
			strings.Join(quoted, " "))
		output, err = r.runPS(script)
	}

	if err == nil {
		return nil
	}
	output = util.TruncateString(strings.TrimSpace(output), 500)
	if isTransientOutput(output) {
		return errors.Wrapf(ErrTransient, "appcmd %s: %s", strings.Join(args, " "), output)
	}
	return errors.Newf("执行 appcmd 失败: %v, 输出: %s", err, output)
}

func (r *AppcmdRuntime) StartSite(name string) error {
	return r.exec("start", "site", "/site.name:"+name)
}

func (r *AppcmdRuntime) StopSite(name string) error {
	return r.exec("stop", "site", "/site.name:"+name)
}

func (r *AppcmdRuntime) StartApplicationPool(name string) error {
	return r.exec("start", "apppool", "/apppool.name:"+name)
}

func (r *AppcmdRuntime) StopApplicationPool(name string) error {
	return r.exec("stop", "apppool", "/apppool.name:"+name)
}

func (r *AppcmdRuntime) RecycleApplicationPool(name string) error {
	return r.exec("recycle", "apppool", "/apppool.name:"+name)
}
