package systems

import (
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

/**
 * @brief A resource created off the render thread, uploaded at the start of
 * the next frame. Exactly one of Mesh, Texture or Material is set.
 */
type UploadRequest struct {
	Mesh     *metadata.MeshData
	Texture  *metadata.TextureData
	Material *metadata.MaterialDescriptor
	/** @brief Called on the render thread with the new handle or the error. */
	OnComplete func(h metadata.Handle, err error)
}

// EnqueueUpload queues req. Safe to call from any goroutine.
func (rs *ResourceSystem) EnqueueUpload(req UploadRequest) {
	rs.uploadMu.Lock()
	rs.uploads = append(rs.uploads, req)
	rs.uploadMu.Unlock()
}

// PendingUploads returns the number of queued requests.
func (rs *ResourceSystem) PendingUploads() int {
	rs.uploadMu.Lock()
	defer rs.uploadMu.Unlock()
	return len(rs.uploads)
}

func (rs *ResourceSystem) drainUploads() {
	rs.uploadMu.Lock()
	pending := rs.uploads
	rs.uploads = nil
	rs.uploadMu.Unlock()

	for _, req := range pending {
		var (
			h   metadata.Handle
			err error
		)
		switch {
		case req.Mesh != nil:
			var mh metadata.MeshHandle
			mh, err = rs.UploadMesh(*req.Mesh)
			h = mh.Handle()
		case req.Texture != nil:
			var th metadata.TextureHandle
			th, err = rs.UploadTexture(req.Texture.Pixels, req.Texture.Description)
			h = th.Handle()
		case req.Material != nil:
			var mh metadata.MaterialHandle
			mh, err = rs.CreateMaterial(*req.Material)
			h = mh.Handle()
		default:
			core.LogWarn("empty upload request ignored")
			continue
		}
		if req.OnComplete != nil {
			req.OnComplete(h, err)
		}
	}
}
