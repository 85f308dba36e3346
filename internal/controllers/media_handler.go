// Package controllers 实现 HTTP 接入层：解析请求、调用服务用例、映射响应与错误。
// 鉴权与房源 CRUD 校验由上游网关负责，这里只处理媒体路径。
package controllers

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/bionicotaku/estate-services-listing/internal/controllers/dto"
	configloader "github.com/bionicotaku/estate-services-listing/internal/infrastructure/configloader"
	"github.com/bionicotaku/estate-services-listing/internal/models/vo"
	"github.com/bionicotaku/estate-services-listing/internal/services"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
)

// MediaHandler 承载房源媒体的五条 HTTP 路由。
type MediaHandler struct {
	*BaseHandler
	commands    *services.MediaCommandService
	queries     *services.MediaQueryService
	scratchRoot string
	log         *log.Helper
}

// NewMediaHandler 构造 MediaHandler。
func NewMediaHandler(
	base *BaseHandler,
	commands *services.MediaCommandService,
	queries *services.MediaQueryService,
	pipeline configloader.PipelineConfig,
	logger log.Logger,
) *MediaHandler {
	if base == nil {
		base = NewBaseHandler(HandlerTimeouts{})
	}
	return &MediaHandler{
		BaseHandler: base,
		commands:    commands,
		queries:     queries,
		scratchRoot: pipeline.ScratchDir,
		log:         log.NewHelper(logger),
	}
}

// Register 把媒体路由挂到 HTTP 服务器。
func (h *MediaHandler) Register(srv *khttp.Server) {
	r := srv.Route("/v1")
	r.POST("/properties/{property_id}/video", h.UploadVideo)
	r.POST("/properties/{property_id}/video:reupload", h.ReuploadVideo)
	r.DELETE("/properties/{property_id}/video", h.RemoveVideo)
	r.PUT("/properties/{property_id}/images", h.ReconcileImages)
	r.GET("/properties/{property_id}/video", h.GetVideoSlot)
}

// UploadVideo 受理视频上传：落暂存 → 服务层置队 → 202。
func (h *MediaHandler) UploadVideo(ctx khttp.Context) error {
	return h.acceptVideo(ctx, h.commands.UploadVideo)
}

// ReuploadVideo 针对 failed 槽位的显式重传入口。
func (h *MediaHandler) ReuploadVideo(ctx khttp.Context) error {
	return h.acceptVideo(ctx, h.commands.ReuploadVideo)
}

func (h *MediaHandler) acceptVideo(ctx khttp.Context, accept func(goCtx context.Context, job services.PublishJob) (*vo.QueuedView, error)) error {
	if h.commands == nil {
		return kerrors.InternalServer(services.ReasonInvalidMedia, "media command service not available")
	}
	propertyID, err := parsePropertyID(ctx)
	if err != nil {
		return err
	}
	job, err := dto.StageVideoUpload(ctx.Request(), propertyID, h.scratchRoot)
	if err != nil {
		return kerrors.BadRequest(services.ReasonInvalidMedia, err.Error())
	}

	timeoutCtx, cancel := h.WithTimeout(ctx.Request().Context(), HandlerTypeCommand)
	defer cancel()

	view, err := accept(timeoutCtx, job)
	if err != nil {
		return wrapError(err, "accept video upload failed")
	}
	return ctx.Result(stdhttp.StatusAccepted, dto.FromQueuedView(view))
}

// RemoveVideo 移除房源视频：对象前缀删除 + 槽位清空。
func (h *MediaHandler) RemoveVideo(ctx khttp.Context) error {
	if h.commands == nil {
		return kerrors.InternalServer(services.ReasonInvalidMedia, "media command service not available")
	}
	propertyID, err := parsePropertyID(ctx)
	if err != nil {
		return err
	}

	timeoutCtx, cancel := h.WithTimeout(ctx.Request().Context(), HandlerTypeCommand)
	defer cancel()

	if err := h.commands.RemoveVideo(timeoutCtx, propertyID); err != nil {
		return wrapError(err, "remove video failed")
	}
	ctx.Response().WriteHeader(stdhttp.StatusNoContent)
	return nil
}

// ReconcileImages 执行图片的替换/新增/删除调整。
func (h *MediaHandler) ReconcileImages(ctx khttp.Context) error {
	if h.commands == nil {
		return kerrors.InternalServer(services.ReasonInvalidMedia, "media command service not available")
	}
	propertyID, err := parsePropertyID(ctx)
	if err != nil {
		return err
	}
	input, err := dto.StageImageReconcile(ctx.Request(), propertyID, h.scratchRoot)
	if err != nil {
		return kerrors.BadRequest(services.ReasonInvalidMedia, err.Error())
	}

	timeoutCtx, cancel := h.WithTimeout(ctx.Request().Context(), HandlerTypeCommand)
	defer cancel()

	view, err := h.commands.ReconcileImages(timeoutCtx, input)
	if err != nil {
		return wrapError(err, "reconcile images failed")
	}
	return ctx.Result(stdhttp.StatusOK, dto.FromMediaView(view))
}

// GetVideoSlot 返回槽位状态；completed 时附带签名播放地址。
func (h *MediaHandler) GetVideoSlot(ctx khttp.Context) error {
	if h.queries == nil {
		return kerrors.InternalServer(services.ReasonInvalidMedia, "media query service not available")
	}
	propertyID, err := parsePropertyID(ctx)
	if err != nil {
		return err
	}

	timeoutCtx, cancel := h.WithTimeout(ctx.Request().Context(), HandlerTypeQuery)
	defer cancel()

	view, err := h.queries.GetVideoSlot(timeoutCtx, propertyID)
	if err != nil {
		return wrapError(err, "get video slot failed")
	}
	return ctx.Result(stdhttp.StatusOK, dto.FromVideoSlotView(view))
}

func parsePropertyID(ctx khttp.Context) (uuid.UUID, error) {
	raw := ctx.Vars().Get("property_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, kerrors.BadRequest(services.ReasonInvalidMedia, fmt.Sprintf("invalid property id %q", raw))
	}
	return id, nil
}

// wrapError 保留服务层已有的 kratos 错误，其余包成 500 并附原因。
func wrapError(err error, msg string) error {
	var ke *kerrors.Error
	if errors.As(err, &ke) {
		return ke
	}
	return kerrors.InternalServer(services.ReasonInvalidMedia, msg).WithCause(err)
}
