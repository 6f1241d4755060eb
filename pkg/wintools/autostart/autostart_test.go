package autostart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommand_Quoting(t *testing.T) {
	tests := []struct {
		name string
		exe  string
		args []string
		want string
	}{
		{"plain", "/usr/bin/wintools", []string{"--minimized"}, `"/usr/bin/wintools" --minimized`},
		{"spaces", `C:\Program Files\WinTools\wintools.exe`, []string{"--minimized"}, `"C:\Program Files\WinTools\wintools.exe" --minimized`},
		{"quoted arg", "/usr/bin/wintools", []string{"--config", "/home/a b/c.yaml"}, `"/usr/bin/wintools" --config "/home/a b/c.yaml"`},
		{"no args", "/usr/bin/wintools", nil, `"/usr/bin/wintools"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manager{name: ValueName, exe: tt.exe, args: tt.args}
			assert.Equal(t, tt.want, m.Command())
		})
	}
}
