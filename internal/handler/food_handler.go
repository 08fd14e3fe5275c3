package handler

import (
	"net/http"
	"strconv"
	"time"

	"niloufer-chat-go/internal/config"
	"niloufer-chat-go/internal/model"
	"niloufer-chat-go/internal/service"
	"niloufer-chat-go/pkg/log"
	"niloufer-chat-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// FoodHandler 负责菜品目录与检索接口。
type FoodHandler struct {
	foodService service.FoodService
	minioReady  bool
}

// NewFoodHandler 创建一个新的 FoodHandler。minioReady 指示图片存储是否可用。
func NewFoodHandler(foodService service.FoodService, minioReady bool) *FoodHandler {
	return &FoodHandler{foodService: foodService, minioReady: minioReady}
}

// ListFoods 分页返回菜品目录，支持 category 过滤。
func (h *FoodHandler) ListFoods(c *gin.Context) {
	category := c.Query("category")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	items := h.foodService.ListFoods(category, limit, offset)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"items": items, "count": len(items)}})
}

// GetCategories 返回目录中的所有分类。
func (h *FoodHandler) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.foodService.Categories()})
}

// GetStatistics 返回目录统计摘要。
func (h *FoodHandler) GetStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.foodService.Statistics()})
}

// GetFood 按 ID 返回单个菜品，附带图片的临时访问链接（如果有）。
func (h *FoodHandler) GetFood(c *gin.Context) {
	id := c.Param("id")
	item, err := h.foodService.GetFoodByID(c.Request.Context(), id)
	if err != nil {
		log.Errorf("查询菜品失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "查询菜品失败", "data": nil})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "菜品不存在", "data": nil})
		return
	}

	data := gin.H{
		"item":           item,
		"dietary":        item.DietaryTags(),
		"ingredients":    item.Ingredients(),
		"macronutrients": item.Macronutrients(),
	}
	if h.minioReady && item.ImageObject != "" {
		url, err := storage.GetPresignedURL(config.Conf.MinIO.BucketName, item.ImageObject, 1*time.Hour)
		if err == nil {
			data["image_url"] = url
		}
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// recommendRequest 是直接检索接口的请求体。
type recommendRequest struct {
	Query  string            `json:"query" binding:"required"`
	TopK   int               `json:"top_k"`
	Filter *model.FoodFilter `json:"filter"`
}

// Recommend 绕过对话，直接执行一次候选检索（调试与集成用）。
func (h *FoodHandler) Recommend(c *gin.Context) {
	var req recommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}
	if req.TopK <= 0 {
		req.TopK = config.Conf.Chat.TopK
	}

	query := service.BuildContextualQuery(req.Query, nil)
	matches, err := h.foodService.Retrieve(c.Request.Context(), req.Query, query, req.TopK, req.Filter)
	if err != nil {
		log.Errorf("检索菜品失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "检索菜品失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": matches})
}
