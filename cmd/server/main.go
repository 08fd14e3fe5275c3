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

	"niloufer-chat-go/internal/config"
	"niloufer-chat-go/internal/handler"
	"niloufer-chat-go/internal/middleware"
	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/internal/pipeline"
	"niloufer-chat-go/internal/repository"
	"niloufer-chat-go/internal/service"
	"niloufer-chat-go/pkg/database"
	"niloufer-chat-go/pkg/embedding"
	"niloufer-chat-go/pkg/es"
	"niloufer-chat-go/pkg/kafka"
	"niloufer-chat-go/pkg/llm"
	"niloufer-chat-go/pkg/log"
	"niloufer-chat-go/pkg/ratelimit"
	"niloufer-chat-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(&model.FoodItem{}, &model.Conversation{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	minioReady := cfg.MinIO.Endpoint != ""
	if minioReady {
		storage.InitMinIO(cfg.MinIO)
	} else {
		log.Info("MinIO 未配置, 菜品图片功能不可用")
	}

	// Elasticsearch 可选：未配置时检索退化为关键词匹配。
	var esClient *es.Client
	if cfg.Elasticsearch.Addresses != "" {
		var err error
		esClient, err = es.NewClient(cfg.Elasticsearch, cfg.Embedding.Dimensions)
		if err != nil {
			log.Fatal("es 初始化失败", err)
		}
	} else {
		log.Info("Elasticsearch 未配置, 检索将全部使用关键词匹配")
	}

	kafkaReady := cfg.Kafka.Brokers != "" && esClient != nil
	if kafkaReady {
		kafka.InitProducer(cfg.Kafka)
	} else {
		log.Info("Kafka 或 Elasticsearch 未配置, 跳过异步入索引")
	}

	// 4. 初始化 Repository
	catalogRepo, err := repository.NewCatalogRepository(database.DB)
	if err != nil {
		log.Fatal("初始化目录仓库失败", err)
	}
	conversationRepo := repository.NewConversationRepository(database.DB)
	snapshots := repository.NewSessionSnapshotStore(database.RDB, time.Duration(cfg.Chat.SessionTTLHours)*time.Hour)
	sessionRepo := repository.NewSessionRepository(cfg.Chat.RetentionCap, snapshots)

	// 5. 初始化 Service (依赖注入)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	limiter := ratelimit.NewLimiter(cfg.LLM.RateLimit)

	var searcher service.VectorSearcher
	if esClient != nil {
		searcher = esClient
	}
	foodService := service.NewFoodService(catalogRepo, searcher, embeddingClient, cfg.LLM.Prompt.NoResultText)
	chatService := service.NewChatService(foodService, sessionRepo, conversationRepo, llmClient, limiter)

	var produce service.ProduceFunc
	if kafkaReady {
		produce = kafka.ProduceIngestTask
	}
	catalogService := service.NewCatalogService(catalogRepo, produce)

	// 6. 启动入索引流水线与后台 Kafka 消费者
	if kafkaReady {
		processor := pipeline.NewProcessor(embeddingClient, esClient, cfg.Embedding, catalogRepo)
		go kafka.StartConsumer(cfg.Kafka, processor)
	}

	// 6.1 初始化导入菜单种子文件（目录非空则跳过）
	if cfg.Catalog.SeedFile != "" {
		go func() {
			if err := catalogService.ImportSeed(context.Background(), cfg.Catalog.SeedFile); err != nil {
				log.Errorf("菜单种子导入失败: %v", err)
			}
		}()
	}

	// 6.2 定时清理空闲会话
	janitorStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		ttl := time.Duration(cfg.Chat.SessionTTLHours) * time.Hour
		for {
			select {
			case <-ticker.C:
				sessionRepo.PurgeIdle(context.Background(), ttl)
			case <-janitorStop:
				return
			}
		}
	}()

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		foods := apiV1.Group("/foods")
		{
			foodHandler := handler.NewFoodHandler(foodService, minioReady)
			foods.GET("", foodHandler.ListFoods)
			foods.GET("/categories", foodHandler.GetCategories)
			foods.GET("/statistics", foodHandler.GetStatistics)
			foods.GET("/:id", foodHandler.GetFood)
			foods.POST("/recommend", foodHandler.Recommend)
		}

		sessions := apiV1.Group("/sessions")
		{
			sessionHandler := handler.NewSessionHandler(sessionRepo)
			sessions.GET("", sessionHandler.ListSessions)
			sessions.GET("/:sessionId", sessionHandler.GetSession)
			sessions.GET("/:sessionId/stats", sessionHandler.GetSessionStats)
			sessions.DELETE("/:sessionId", sessionHandler.DeleteSession)
		}

		analytics := apiV1.Group("/analytics")
		{
			analytics.GET("/conversations/:sessionId", handler.NewAnalyticsHandler(conversationRepo).GetConversations)
		}

		admin := apiV1.Group("/admin")
		{
			adminHandler := handler.NewAdminHandler(catalogService, catalogRepo, minioReady)
			admin.POST("/reindex", adminHandler.ReindexCatalog)
			admin.POST("/foods/:id/image", adminHandler.UploadFoodImage)
		}
	}

	// Chat 路由 (WebSocket)
	r.GET("/chat", handler.NewChatHandler(chatService).Handle)

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
	close(janitorStop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个循环，会在程序退出时自然结束。
	log.Info("服务已优雅关闭")
}
