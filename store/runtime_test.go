package store

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppcmdRuntime_Local(t *testing.T) {
	var gotName string
	var gotArgs []string
	r := NewAppcmdRuntime("", `C:\Windows\System32\inetsrv\appcmd.exe`)
	r.run = func(name string, args ...string) (string, error) {
		gotName = name
		gotArgs = args
		return `"S1" successfully started.`, nil
	}

	require.NoError(t, r.StartSite("S1"))
	assert.Equal(t, `C:\Windows\System32\inetsrv\appcmd.exe`, gotName)
	assert.Equal(t, []string{"start", "site", "/site.name:S1"}, gotArgs)

	require.NoError(t, r.RecycleApplicationPool("P1"))
	assert.Equal(t, []string{"recycle", "apppool", "/apppool.name:P1"}, gotArgs)
}

func TestAppcmdRuntime_Errors(t *testing.T) {
	tests := []struct {
		name          string
		output        string
		wantTransient bool
	}{
		{
			name:          "配置尚未生效",
			output:        "ERROR ( hresult:800710d8, message:Command execution failed. )",
			wantTransient: true,
		},
		{
			name:          "设备未就绪",
			output:        "ERROR ( HRESULT:80070015 )",
			wantTransient: true,
		},
		{
			name:          "站点不存在",
			output:        `ERROR ( message:Cannot find SITE object with identifier "S1". )`,
			wantTransient: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewAppcmdRuntime("", "appcmd.exe")
			r.run = func(name string, args ...string) (string, error) {
				return tt.output, fmt.Errorf("exit status 1")
			}
			err := r.StopSite("S1")
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, errors.Is(err, ErrTransient))
		})
	}
}

func TestAppcmdRuntime_Remote(t *testing.T) {
	var script string
	r := NewAppcmdRuntime("web01", `C:\Windows\System32\inetsrv\appcmd.exe`)
	r.run = func(name string, args ...string) (string, error) {
		t.Fatal("远程主机不应直接执行 appcmd")
		return "", nil
	}
	r.runPS = func(s string) (string, error) {
		script = s
		return "", nil
	}

	require.NoError(t, r.StartApplicationPool("O'Brien Pool"))
	assert.True(t, strings.HasPrefix(script, "Invoke-Command -ComputerName 'web01'"))
	assert.Contains(t, script, `& 'C:\Windows\System32\inetsrv\appcmd.exe'`)
	assert.Contains(t, script, `'/apppool.name:O''Brien Pool'`)
}

func TestMemoryRuntime_TransientFault(t *testing.T) {
	rt := NewMemoryRuntime()
	rt.Fault = TransientFault(OpRecyclePool, 2)

	assert.True(t, errors.Is(rt.RecycleApplicationPool("P1"), ErrTransient))
	assert.NoError(t, rt.StartApplicationPool("P1"))
	assert.True(t, errors.Is(rt.RecycleApplicationPool("P1"), ErrTransient))
	assert.NoError(t, rt.RecycleApplicationPool("P1"))
	assert.Len(t, rt.Calls(), 4)
}
