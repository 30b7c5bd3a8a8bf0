package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/gamemaster/internal/api"
	"github.com/wfunc/gamemaster/internal/config"
	"github.com/wfunc/gamemaster/internal/content"
	"github.com/wfunc/gamemaster/internal/database"
	"github.com/wfunc/gamemaster/internal/engine"
	"github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/generator"
	"github.com/wfunc/gamemaster/internal/ledger"
	"github.com/wfunc/gamemaster/internal/logger"
	"github.com/wfunc/gamemaster/internal/metrics"
	"github.com/wfunc/gamemaster/internal/oracle"
	"github.com/wfunc/gamemaster/internal/repository"
	"github.com/wfunc/gamemaster/internal/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db         *gorm.DB
	repos      *repository.Manager
	store      *content.BoltStore
	content    content.Store
	chain      *ledger.EthClient
	engine     *engine.Engine
	dispatcher *engine.Dispatcher
	poller     *ledger.Poller
	reconciler *engine.Reconciler
	scheduler  *generator.Scheduler
	hub        *websocket.Hub
	httpServer *http.Server
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	// 显示版本信息
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	server := NewServer(cfg)
	if err := server.Init(ctx); err != nil {
		logger.Fatal("服务器初始化失败", zap.Error(err))
	}
	defer server.Close()

	// 监听配置变化
	config.Watch(server.reloadConfig)

	if err := server.Run(ctx); err != nil {
		logger.Error("服务器异常退出", zap.Error(err))
		server.Close()
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
	}
}

// Init 初始化全部组件
func (s *Server) Init(ctx context.Context) error {
	s.logger.Info("正在启动游戏主持服务...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode))

	metrics.RegisterMetrics()

	if err := s.initDatabase(); err != nil {
		return err
	}
	if err := s.initContent(); err != nil {
		return err
	}

	// 链上连接
	chain, err := ledger.Dial(ctx, &s.cfg.Ledger, logger.WithModule("ledger"))
	if err != nil {
		return err
	}
	s.chain = chain
	writer := ledger.Instrument(chain)

	// 裁判与关卡设计
	completer, err := oracle.NewOpenAICompleter(&s.cfg.Oracle)
	if err != nil {
		return err
	}
	judge := oracle.NewJudge(completer, s.cfg.Oracle.Timeout, logger.WithModule("oracle"))
	judge.OnVerdict(func(v oracle.Verdict, failClosed bool, elapsed time.Duration) {
		metrics.ObserveVerdict(v.Passed, failClosed, elapsed)
	})

	// 进度推送
	s.hub = websocket.NewHub(s.cfg.WebSocket.PingInterval, logger.WithModule("websocket"))

	// 进度引擎
	engineLog := logger.WithModule("engine")
	s.engine, err = engine.New(engine.Deps{
		Repos:    s.repos,
		Content:  s.content,
		Ledger:   writer,
		Judge:    judge,
		Notifier: s.hub,
		Logger:   engineLog,
	}, engine.Options{})
	if err != nil {
		return err
	}
	s.dispatcher = engine.NewDispatcher(s.engine, engine.NewLogSink(engineLog), s.cfg.Engine.Concurrency, engineLog)
	s.reconciler = engine.NewReconciler(s.engine, s.cfg.Engine.ReconcileInterval, engineLog)
	s.poller = ledger.NewPoller(chain.RPC(), chain.Address(), s.repos.Cursors(), s.dispatcher,
		&s.cfg.Ledger, logger.WithModule("ledger"))

	// 关卡生成
	if s.cfg.Generator.Enabled {
		s.scheduler = generator.NewScheduler(oracle.NewLevelDesigner(completer), s.content, writer,
			s.repos.Levels(), &s.cfg.Generator, logger.WithModule("generator"))
	}

	// HTTP服务
	gin.SetMode(ginMode(s.cfg.Server.Mode))
	router := api.NewRouter(api.Deps{
		Repos:     s.repos,
		Content:   s.content,
		Hub:       s.hub,
		WebSocket: &s.cfg.WebSocket,
		Logger:    logger.WithModule("api"),
	})
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	s.db = database.GetDB()

	// 自动迁移数据库
	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(s.db); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected(s.db) {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.repos = repository.NewManager(s.db)
	s.logger.Info("数据库初始化完成")
	return nil
}

// initContent 初始化内容存储
func (s *Server) initContent() error {
	if dir := filepath.Dir(s.cfg.Content.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ErrContentStore, "创建内容存储目录失败")
		}
	}
	store, err := content.OpenBolt(s.cfg.Content.Path)
	if err != nil {
		return err
	}
	s.store = store
	s.content = content.NewCachedStore(store, s.cfg.Content.CacheTTL)
	return nil
}

// Run 运行全部后台任务与HTTP服务，直到 ctx 结束或任一任务失败
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(s.poller.Run(ctx))
	})
	g.Go(func() error {
		return ignoreCanceled(s.reconciler.Run(ctx))
	})
	if s.scheduler != nil {
		g.Go(func() error {
			return ignoreCanceled(s.scheduler.Run(ctx))
		})
	}

	g.Go(func() error {
		s.logger.Info("HTTP服务已启动", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, errors.ErrUnknown, "HTTP服务启动失败")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("正在优雅关闭服务器...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// Close 关闭组件，可重复调用
func (s *Server) Close() {
	if s.chain != nil {
		s.chain.Close()
		s.chain = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("关闭内容存储失败", zap.Error(err))
		}
		s.store = nil
	}
	if s.db != nil {
		if err := database.Close(); err != nil {
			s.logger.Error("关闭数据库失败", zap.Error(err))
		}
		s.db = nil
	}
}

// reloadConfig 应用可热更新的配置
func (s *Server) reloadConfig(newCfg *config.Config) {
	previous := logger.Level()
	logger.SetLevel(newCfg.Log.Level)
	s.logger.Info("配置重新加载完成",
		zap.Stringer("previous_level", previous),
		zap.Stringer("log_level", logger.Level()))
}

// ginMode 将运行模式映射为gin模式
func ginMode(mode string) string {
	switch mode {
	case "production", "release":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

// ignoreCanceled 正常退出时忽略 ctx 取消错误
func ignoreCanceled(err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("游戏主持服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
