package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subforge/internal/config"
	"github.com/John-Robertt/subforge/internal/httpapi"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		if err := healthcheckCommand(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	runServer(os.Args[1:])
}

func runServer(args []string) {
	fs := flag.NewFlagSet("subforge", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML 配置文件路径（修改后自动重新加载）")
	listen := fs.String("listen", config.DefaultListen, "HTTP 监听地址")
	readHeaderTimeout := fs.Duration("read-header-timeout", 5*time.Second, "HTTP ReadHeaderTimeout（请求头读取超时）")
	convertTimeout := fs.Duration("convert-timeout", 60*time.Second, "单次转换的总超时（包含远程拉取）")
	fetchTimeout := fs.Duration("fetch-timeout", 15*time.Second, "单次远程拉取的超时（每个 URL 一次请求）")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "收到退出信号后的优雅退出等待时间")
	logLevel := fs.String("log-level", "", "日志级别（默认读取 LOG_LEVEL，否则 info）")
	_ = fs.Parse(args)

	setupLogging(*logLevel)

	cfg := config.Default()
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			logrus.Fatalln("[Server] load config:", err)
		}
		cfg = c
		logrus.Infoln("[Server] loaded config file:", *configPath)
	}
	store := config.NewStore(cfg)

	// Explicit flags win over the config file.
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	addr := cfg.Server.Listen
	if set["listen"] {
		addr = *listen
	}
	opt := httpapi.Options{Config: store.Load}
	if set["convert-timeout"] {
		opt.ConvertTimeout = *convertTimeout
	}
	if set["fetch-timeout"] {
		opt.FetchTimeout = *fetchTimeout
	}
	rht := cfg.Server.ReadHeaderTimeout
	if set["read-header-timeout"] {
		rht = *readHeaderTimeout
	}
	grace := cfg.Server.ShutdownTimeout
	if set["shutdown-timeout"] {
		grace = *shutdownTimeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		if err := store.Watch(ctx, *configPath); err != nil {
			logrus.Warnln("[Server] config hot reload disabled:", err)
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewHandlerWithOptions(opt),
		ReadHeaderTimeout: rht,
	}

	logrus.Infof("[Server] listening on http://%s", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logrus.Infoln("[Server] shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			logrus.Warnln("[Server] graceful shutdown failed:", err)
			_ = srv.Close()
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalln(err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalln(err)
		}
	}
}

// setupLogging takes the level from the flag, then LOG_LEVEL, then info.
func setupLogging(flagLevel string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	raw := flagLevel
	if raw == "" {
		raw = os.Getenv("LOG_LEVEL")
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func healthcheckCommand(args []string) error {
	fs := flag.NewFlagSet("subforge healthcheck", flag.ContinueOnError)
	target := fs.String("url", "", "健康检查 URL（默认由 -listen 推导）")
	listen := fs.String("listen", config.DefaultListen, "服务监听地址")
	timeout := fs.Duration("timeout", 3*time.Second, "请求超时")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u := *target
	if u == "" {
		var err error
		if u, err = deriveHealthzURL(*listen); err != nil {
			return err
		}
	}
	return runHealthcheck(u, *timeout)
}

// deriveHealthzURL turns a listen address into a loopback /healthz URL.
// Wildcard hosts are probed on 127.0.0.1.
func deriveHealthzURL(listen string) (string, error) {
	s := strings.TrimSpace(listen)
	if s == "" {
		return "", errors.New("listen 不能为空")
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return strings.TrimSuffix(s, "/") + "/healthz", nil
	}
	if !strings.Contains(s, ":") {
		s = ":" + s
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("listen 地址不合法: %w", err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/healthz", nil
}

func runHealthcheck(u string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
