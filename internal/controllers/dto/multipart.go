package dto

import (
	"fmt"
	"io"
	"mime/multipart"
	stdhttp "net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bionicotaku/estate-services-listing/internal/services"

	"github.com/google/uuid"
)

// multipart 字段约定：
//   - 视频上传：单个文件字段 "video"。
//   - 图片调整：文件字段 "new"（可重复，净新增）、
//     文件字段 "replace:<旧对象键>"（每个旧键一个替换文件）、
//     表单值 "removed"（可重复，待删除的旧对象键）。
const (
	videoFileField = "video"
	newImageField  = "new"
	replacePrefix  = "replace:"
	removedField   = "removed"

	// ParseMultipartForm 的内存阈值，超过部分落到临时文件。
	multipartMemoryLimit = 32 << 20

	maxVideoUploadBytes = 4 << 30
	maxImageUploadBytes = 256 << 20
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".m4v":  {},
	".webm": {},
	".mkv":  {},
}

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// StageVideoUpload 解析视频上传请求并把源文件落到独立暂存目录。
// 返回的 PublishJob 携带暂存目录路径；受理失败或任务结束后由调用方/worker 清理。
func StageVideoUpload(r *stdhttp.Request, propertyID uuid.UUID, scratchRoot string) (services.PublishJob, error) {
	r.Body = stdhttp.MaxBytesReader(nil, r.Body, maxVideoUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return services.PublishJob{}, fmt.Errorf("parse multipart form: %w", err)
	}
	defer discardForm(r)

	headers := r.MultipartForm.File[videoFileField]
	if len(headers) == 0 {
		return services.PublishJob{}, fmt.Errorf("file field %q is required", videoFileField)
	}
	if len(headers) > 1 {
		return services.PublishJob{}, fmt.Errorf("exactly one %q file expected, got %d", videoFileField, len(headers))
	}
	header := headers[0]

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := videoExtensions[ext]; !ok {
		return services.PublishJob{}, fmt.Errorf("unsupported video type %q", ext)
	}

	scratchDir := filepath.Join(scratchRoot, uuid.NewString())
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return services.PublishJob{}, fmt.Errorf("create scratch dir: %w", err)
	}
	sourcePath := filepath.Join(scratchDir, "source"+ext)
	if err := copyPart(header, sourcePath); err != nil {
		_ = os.RemoveAll(scratchDir)
		return services.PublishJob{}, fmt.Errorf("stage video file: %w", err)
	}

	return services.PublishJob{
		PropertyID:       propertyID,
		SourcePath:       sourcePath,
		OriginalFileName: filepath.Base(header.Filename),
		ScratchDir:       scratchDir,
	}, nil
}

// StageImageReconcile 解析图片调整请求并把所有新图落到暂存区。
// 成功或失败后暂存文件都由服务层统一清理；本函数只在自身出错时回收已落盘的部分。
func StageImageReconcile(r *stdhttp.Request, propertyID uuid.UUID, scratchRoot string) (services.ReconcileImagesInput, error) {
	r.Body = stdhttp.MaxBytesReader(nil, r.Body, maxImageUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return services.ReconcileImagesInput{}, fmt.Errorf("parse multipart form: %w", err)
	}
	defer discardForm(r)

	if err := os.MkdirAll(scratchRoot, 0o755); err != nil {
		return services.ReconcileImagesInput{}, fmt.Errorf("create scratch dir: %w", err)
	}

	input := services.ReconcileImagesInput{
		PropertyID:  propertyID,
		RemovedKeys: append([]string(nil), r.MultipartForm.Value[removedField]...),
	}

	staged := make([]string, 0, 4)
	fail := func(err error) (services.ReconcileImagesInput, error) {
		for _, path := range staged {
			_ = os.Remove(path)
		}
		return services.ReconcileImagesInput{}, err
	}
	stage := func(header *multipart.FileHeader) (services.StagedImage, error) {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if _, ok := imageExtensions[ext]; !ok {
			return services.StagedImage{}, fmt.Errorf("unsupported image type %q", ext)
		}
		f, err := os.CreateTemp(scratchRoot, "image-*"+ext)
		if err != nil {
			return services.StagedImage{}, fmt.Errorf("create staged image: %w", err)
		}
		path := f.Name()
		f.Close()
		if err := copyPart(header, path); err != nil {
			_ = os.Remove(path)
			return services.StagedImage{}, fmt.Errorf("stage image %s: %w", header.Filename, err)
		}
		staged = append(staged, path)
		return services.StagedImage{LocalPath: path, OriginalName: filepath.Base(header.Filename)}, nil
	}

	for field, headers := range r.MultipartForm.File {
		switch {
		case field == newImageField:
			for _, header := range headers {
				img, err := stage(header)
				if err != nil {
					return fail(err)
				}
				input.NewImages = append(input.NewImages, img)
			}
		case strings.HasPrefix(field, replacePrefix):
			oldKey := strings.TrimPrefix(field, replacePrefix)
			if oldKey == "" {
				return fail(fmt.Errorf("replacement field %q is missing the target key", field))
			}
			if len(headers) != 1 {
				return fail(fmt.Errorf("replacement %q expects exactly one file, got %d", oldKey, len(headers)))
			}
			img, err := stage(headers[0])
			if err != nil {
				return fail(err)
			}
			if input.Replacements == nil {
				input.Replacements = make(map[string]services.StagedImage)
			}
			input.Replacements[oldKey] = img
		default:
			return fail(fmt.Errorf("unexpected file field %q", field))
		}
	}

	if len(input.NewImages) == 0 && len(input.Replacements) == 0 && len(input.RemovedKeys) == 0 {
		return services.ReconcileImagesInput{}, fmt.Errorf("no image changes requested")
	}
	return input, nil
}

// copyPart 把一个 multipart 文件部分写到目标路径。
func copyPart(header *multipart.FileHeader, dst string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// discardForm 清掉 ParseMultipartForm 产生的临时文件。
func discardForm(r *stdhttp.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
