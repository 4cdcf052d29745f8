package iis

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var windowsAbsRe = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// isWindowsPath 盘符、UNC 或以 %变量% 开头的路径
func isWindowsPath(p string) bool {
	return windowsAbsRe.MatchString(p) || strings.HasPrefix(p, `\\`) || strings.HasPrefix(p, "%")
}

// ResolvePhysicalDirectory 将相对物理路径解析为绝对路径
//
// 本机：相对于 workingDirectory（为空时为当前目录）；远程主机：workingDirectory 为空时相对于 C:\。
// 以 %变量% 开头的路径原样保留，由 IIS 在运行时展开。
func ResolvePhysicalDirectory(computerName, workingDirectory, physicalDirectory string) (string, error) {
	physicalDirectory = strings.TrimSpace(physicalDirectory)
	if physicalDirectory == "" {
		return "", validationErrorf("物理路径不能为空")
	}
	if isWindowsPath(physicalDirectory) {
		return cleanWindowsPath(physicalDirectory), nil
	}
	if filepath.IsAbs(physicalDirectory) {
		return filepath.Clean(physicalDirectory), nil
	}

	base := strings.TrimSpace(workingDirectory)
	if base == "" {
		if computerName != "" {
			base = `C:\`
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			base = cwd
		}
	} else if computerName == "" && !isWindowsPath(base) && !filepath.IsAbs(base) {
		abs, err := filepath.Abs(base)
		if err != nil {
			return "", err
		}
		base = abs
	}

	if isWindowsPath(base) {
		return cleanWindowsPath(strings.TrimRight(base, `\/`) + `\` + physicalDirectory), nil
	}
	return filepath.Join(base, physicalDirectory), nil
}

// cleanWindowsPath 统一为反斜杠并处理 . 和 ..
func cleanWindowsPath(p string) string {
	p = strings.ReplaceAll(p, "/", `\`)

	prefix := ""
	switch {
	case strings.HasPrefix(p, `\\`):
		prefix = `\\`
		p = p[2:]
	case windowsAbsRe.MatchString(p):
		prefix = p[:3]
		p = p[3:]
	}

	parts := make([]string, 0)
	for _, part := range strings.Split(p, `\`) {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(parts) > 0 && !strings.HasPrefix(parts[len(parts)-1], "%") {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, part)
		}
	}
	return prefix + strings.Join(parts, `\`)
}

// expandIISPhysicalPath 展开 %VAR% 和 $VAR 形式的环境变量，未定义的变量原样保留
func expandIISPhysicalPath(path string) string {
	expanded := os.ExpandEnv(path)
	if !strings.Contains(expanded, "%") {
		return expanded
	}

	var builder strings.Builder
	builder.Grow(len(expanded))

	for i := 0; i < len(expanded); i++ {
		if expanded[i] != '%' {
			builder.WriteByte(expanded[i])
			continue
		}

		end := strings.IndexByte(expanded[i+1:], '%')
		if end < 0 {
			builder.WriteByte(expanded[i])
			continue
		}
		end = i + 1 + end

		if end == i+1 {
			builder.WriteByte('%')
			i = end
			continue
		}

		key := expanded[i+1 : end]
		if value, ok := os.LookupEnv(key); ok {
			builder.WriteString(value)
		} else {
			builder.WriteString(expanded[i : end+1])
		}
		i = end
	}

	return builder.String()
}
