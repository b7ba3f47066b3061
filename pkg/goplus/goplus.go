package goplus

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

var (
	defaultGroup     *WaitGroup
	defaultGroupOnce sync.Once
)

func DefaultGroup() *WaitGroup {
	defaultGroupOnce.Do(func() {
		defaultGroup = &WaitGroup{}
	})
	return defaultGroup
}

// Go 启动一个带 panic 保护的协程
func Go(fn func()) {
	DefaultGroup().Go(fn)
}

// Wait 等待所有通过 Go 启动的协程退出
func Wait() {
	DefaultGroup().Wait()
}

// WaitGroup 带 panic 保护的协程组
type WaitGroup struct {
	wg sync.WaitGroup
}

func (g *WaitGroup) Go(fn func()) {
	g.wg.Add(1)
	go func() {
		defer Recover()
		defer g.wg.Done()
		fn()
	}()
}

func (g *WaitGroup) Wait() {
	g.wg.Wait()
}

// Recover 捕获 panic 并记录调用栈
func Recover() {
	if r := recover(); r != nil {
		const maxDepth = 32
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("panic: %v\ncallers:\n", r))
		for i := 1; i <= maxDepth; i++ {
			_, file, line, ok := runtime.Caller(i)
			if !ok {
				break
			}
			sb.WriteString(fmt.Sprintf("%s:%d\n", file, line))
		}
		logger.Error().Msg(sb.String())
	}
}
