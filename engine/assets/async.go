package assets

import (
	"github.com/spaghettifunk/anima-render/engine/assets/loaders"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-render/engine/systems"
)

/**
 * @brief Decodes textures/<name> on a worker and queues the upload. done is
 * called exactly once: on the render thread after the upload, or on the
 * worker when decoding fails.
 */
func (am *AssetManager) LoadTextureAsync(jobs *systems.JobSystem, registry *systems.ResourceSystem, name string, options loaders.TextureOptions, done func(metadata.TextureHandle, error)) error {
	return jobs.Submit(systems.JobTask{
		Name: "texture:" + name,
		OnStart: func() (interface{}, error) {
			return am.LoadTexture(name, options)
		},
		OnComplete: func(result interface{}) {
			registry.EnqueueUpload(systems.UploadRequest{
				Texture: result.(*metadata.TextureData),
				OnComplete: func(h metadata.Handle, err error) {
					done(metadata.TextureHandle(h), err)
				},
			})
		},
		OnFailure: func(err error) {
			done(metadata.TextureHandle{}, err)
		},
	})
}

// LoadMeshAsync parses meshes/<name>.obj on a worker and queues the upload. See LoadTextureAsync.
func (am *AssetManager) LoadMeshAsync(jobs *systems.JobSystem, registry *systems.ResourceSystem, name string, done func(metadata.MeshHandle, error)) error {
	return jobs.Submit(systems.JobTask{
		Name: "mesh:" + name,
		OnStart: func() (interface{}, error) {
			return am.LoadMesh(name)
		},
		OnComplete: func(result interface{}) {
			registry.EnqueueUpload(systems.UploadRequest{
				Mesh: result.(*metadata.MeshData),
				OnComplete: func(h metadata.Handle, err error) {
					done(metadata.MeshHandle(h), err)
				},
			})
		},
		OnFailure: func(err error) {
			done(metadata.MeshHandle{}, err)
		},
	})
}

type decodedMaterial struct {
	config   *loaders.MaterialConfig
	textures []*metadata.TextureData
}

/**
 * @brief Decodes a material and its textures on a worker. The textures are
 * uploaded first; the material follows on the next drain once every texture
 * handle is known. See LoadTextureAsync for when done runs.
 */
func (am *AssetManager) LoadMaterialAsync(jobs *systems.JobSystem, registry *systems.ResourceSystem, name string, done func(metadata.MaterialHandle, error)) error {
	return jobs.Submit(systems.JobTask{
		Name: "material:" + name,
		OnStart: func() (interface{}, error) {
			cfg, err := am.LoadMaterial(name)
			if err != nil {
				return nil, err
			}
			decoded := &decodedMaterial{config: cfg}
			for _, textureName := range cfg.TextureNames {
				data, err := am.LoadTexture(textureName, loaders.DefaultTextureOptions())
				if err != nil {
					return nil, err
				}
				decoded.textures = append(decoded.textures, data)
			}
			return decoded, nil
		},
		OnComplete: func(result interface{}) {
			decoded := result.(*decodedMaterial)
			am.uploadMaterial(registry, name, decoded, done)
		},
		OnFailure: func(err error) {
			done(metadata.MaterialHandle{}, err)
		},
	})
}

func (am *AssetManager) uploadMaterial(registry *systems.ResourceSystem, name string, decoded *decodedMaterial, done func(metadata.MaterialHandle, error)) {
	desc := decoded.config.Descriptor
	desc.Textures = make([]metadata.TextureHandle, len(decoded.textures))

	enqueueMaterial := func() {
		registry.EnqueueUpload(systems.UploadRequest{
			Material: &desc,
			OnComplete: func(h metadata.Handle, err error) {
				if err == nil {
					am.trackMaterial(name, metadata.MaterialHandle(h))
				}
				done(metadata.MaterialHandle(h), err)
			},
		})
	}
	if len(decoded.textures) == 0 {
		enqueueMaterial()
		return
	}

	// Upload callbacks all run on the render thread, one after another.
	remaining := len(decoded.textures)
	failed := false
	for i, data := range decoded.textures {
		registry.EnqueueUpload(systems.UploadRequest{
			Texture: data,
			OnComplete: func(h metadata.Handle, err error) {
				if failed {
					return
				}
				if err != nil {
					failed = true
					done(metadata.MaterialHandle{}, err)
					return
				}
				desc.Textures[i] = metadata.TextureHandle(h)
				remaining--
				if remaining == 0 {
					enqueueMaterial()
				}
			},
		})
	}
}
