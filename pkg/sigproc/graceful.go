package sigproc

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/utrading/utrading-hl-tracker/pkg/goplus"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

type HandlerFunc func(os.Signal)

// GracefulShutdown 注册信号处理，收到退出信号后执行 shutdown，
// 最长等待 30 秒后强制退出
func GracefulShutdown(shutdown HandlerFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	goplus.Go(func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("received signal")

		goplus.Go(func() {
			shutdown(sig)
		})

		<-time.After(30 * time.Second)
		os.Exit(0)
	})
}
