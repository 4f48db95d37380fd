// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainqa-go/internal/config"
	"chainqa-go/internal/handler"
	"chainqa-go/internal/middleware"
	"chainqa-go/internal/repository"
	"chainqa-go/internal/service"
	"chainqa-go/pkg/chain"
	"chainqa-go/pkg/database"
	"chainqa-go/pkg/ipfs"
	"chainqa-go/pkg/kafka"
	"chainqa-go/pkg/log"
	"chainqa-go/pkg/notify"
	"chainqa-go/pkg/storage"
	"chainqa-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 后台任务（Kafka 消费者）的生命周期
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL)
	database.InitRedis(cfg.Database.Redis)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	questionRepo := repository.NewQuestionRepository(database.DB)
	answerRepo := repository.NewAnswerRepository(database.DB)

	// 5. 初始化外部依赖：内容存储、链上网关、事件发布
	pinner, err := newPinner(bgCtx, cfg)
	if err != nil {
		log.Fatal("初始化内容存储失败", err)
	}

	dialCtx, cancelDial := context.WithTimeout(bgCtx, 15*time.Second)
	gateway, err := chain.Dial(dialCtx, cfg.Chain)
	cancelDial()
	if err != nil {
		log.Fatal("初始化链上网关失败", err)
	}

	hub := notify.NewHub(0)
	var publisher notify.Publisher = hub
	var kafkaPublisher *kafka.Publisher
	if cfg.Kafka.Enabled() {
		// 多实例部署时通过 Kafka 广播，每个实例的消费者再投递给本地 Hub
		kafkaPublisher = kafka.NewPublisher(cfg.Kafka)
		publisher = kafkaPublisher
		go kafka.StartConsumer(bgCtx, cfg.Kafka, hub)
	} else {
		log.Info("未配置 Kafka，事件只在本实例内分发")
	}

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	answerService := service.NewAnswerService(questionRepo, answerRepo, pinner, gateway, publisher)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	answerHandler := handler.NewAnswerHandler(answerService)
	eventHandler := handler.NewEventHandler(hub)
	authMiddleware := middleware.AuthMiddleware(jwtManager, userRepo)

	apiV1 := r.Group("/api/v1")
	{
		answers := apiV1.Group("/answers")
		{
			answers.GET("/:qId", answerHandler.List)
			answers.POST("/:qId", authMiddleware, answerHandler.Create)
		}

		events := apiV1.Group("/events")
		{
			events.GET("/ws", eventHandler.WebSocket)
			events.GET("/stream", eventHandler.Stream)
		}

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(authMiddleware, middleware.AdminAuthMiddleware())
		{
			admin.GET("/answers/unsynced", answerHandler.ListUnsynced)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 等待确认中的请求可能需要较长时间，停机超时与确认超时保持一致
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Chain.ConfirmTimeout())
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	cancelBg()
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}

// newPinner 根据 ipfs.backend 选择内容存储，配置了缓存时长时在外层加上 Redis 缓存。
func newPinner(ctx context.Context, cfg config.Config) (ipfs.Pinner, error) {
	var pinner ipfs.Pinner
	backend := cfg.IPFS.Backend
	if backend == "" {
		backend = "pinata"
	}
	switch backend {
	case "minio":
		client, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		pinner = ipfs.NewObjectPinner(client, cfg.MinIO.BucketName)
	case "pinata":
		pinner = ipfs.NewPinataClient(cfg.IPFS.Pinata)
	default:
		return nil, fmt.Errorf("unknown ipfs backend %q", backend)
	}

	if ttl := cfg.IPFS.CacheTTL(); ttl > 0 {
		pinner = ipfs.NewCachedPinner(backend, pinner, ipfs.NewRedisCIDCache(database.RDB), ttl)
	}
	log.Infof("内容存储后端: %s, 缓存时长: %s", backend, cfg.IPFS.CacheTTL())
	return pinner, nil
}
