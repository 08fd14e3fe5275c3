package handler

import (
	"fmt"
	"net/http"
	"path/filepath"

	"niloufer-chat-go/internal/config"
	"niloufer-chat-go/internal/repository"
	"niloufer-chat-go/internal/service"
	"niloufer-chat-go/pkg/log"
	"niloufer-chat-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责目录维护类接口。
type AdminHandler struct {
	catalogService service.CatalogService
	catalogRepo    repository.CatalogRepository
	minioReady     bool
}

// NewAdminHandler 创建一个新的 AdminHandler。
func NewAdminHandler(catalogService service.CatalogService, catalogRepo repository.CatalogRepository, minioReady bool) *AdminHandler {
	return &AdminHandler{
		catalogService: catalogService,
		catalogRepo:    catalogRepo,
		minioReady:     minioReady,
	}
}

// ReindexCatalog 为目录中的每个菜品投递一个重建索引任务。
func (h *AdminHandler) ReindexCatalog(c *gin.Context) {
	enqueued, err := h.catalogService.EnqueueReindexAll()
	if err != nil {
		log.Errorf("投递重建索引任务失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": err.Error(), "data": gin.H{"enqueued": enqueued}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"enqueued": enqueued}})
}

// UploadFoodImage 上传菜品图片到对象存储并更新目录记录。
func (h *AdminHandler) UploadFoodImage(c *gin.Context) {
	if !h.minioReady {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "对象存储未配置", "data": nil})
		return
	}

	id := c.Param("id")
	if _, ok := h.catalogRepo.FindByID(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "菜品不存在", "data": nil})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少 image 文件字段", "data": nil})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("打开上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "读取上传文件失败", "data": nil})
		return
	}
	defer file.Close()

	objectName := fmt.Sprintf("foods/%s%s", id, filepath.Ext(fileHeader.Filename))
	contentType := fileHeader.Header.Get("Content-Type")
	if err := storage.UploadObject(c.Request.Context(), config.Conf.MinIO.BucketName, objectName, file, fileHeader.Size, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "上传图片失败", "data": nil})
		return
	}

	if err := h.catalogRepo.UpdateImage(id, objectName); err != nil {
		log.Errorf("更新菜品图片记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "更新菜品图片记录失败", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"object": objectName}})
}
