package util

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

// ErrNoBrowser 所有候选命令都无法启动
var ErrNoBrowser = errors.New("no browser could be started")

// Launcher 依次尝试候选命令打开审计页面
type Launcher struct {
	goos  string
	start func(name string, args ...string) error
}

// NewLauncher 当前平台的启动器
func NewLauncher() *Launcher {
	return &Launcher{
		goos: runtime.GOOS,
		start: func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		},
	}
}

// Candidates 平台对应的候选命令，首个为系统默认浏览器
func Candidates(goos, url string) [][]string {
	switch goos {
	case "windows":
		// rundll32 调用 url.dll，比 cmd /c start 更稳定
		return [][]string{
			{"rundll32", "url.dll,FileProtocolHandler", url},
			{"explorer", url},
		}
	case "darwin":
		return [][]string{{"open", url}}
	default:
		return [][]string{
			{"xdg-open", url},
			{"google-chrome", url},
			{"firefox", url},
			{"chromium-browser", url},
			{"sensible-browser", url},
		}
	}
}

// Open 打开 url；全部失败时返回 ErrNoBrowser 并附带首个错误
func (l *Launcher) Open(url string) error {
	var first error
	for _, cmd := range Candidates(l.goos, url) {
		err := l.start(cmd[0], cmd[1:]...)
		if err == nil {
			return nil
		}
		if first == nil {
			first = err
		}
	}
	return fmt.Errorf("%w: %v", ErrNoBrowser, first)
}

// OpenBrowser 用系统默认浏览器打开审计页面
func OpenBrowser(url string) error {
	return NewLauncher().Open(url)
}

// ServerURL 本地访问地址
func ServerURL(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}
