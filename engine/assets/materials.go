package assets

import (
	"fmt"

	"github.com/spaghettifunk/anima-render/engine/assets/loaders"
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-render/engine/systems"
)

/**
 * @brief Loads materials/<name>.toml, uploads the textures it names and
 * creates the material. Must run on the render thread. The handle is
 * remembered so that ReloadMaterial can find it.
 */
func (am *AssetManager) CreateMaterial(registry *systems.ResourceSystem, name string) (metadata.MaterialHandle, error) {
	cfg, err := am.LoadMaterial(name)
	if err != nil {
		core.LogError("failed to load material '%s': %s", name, err)
		return metadata.MaterialHandle{}, core.NewError(core.KindInitializationFailure, core.StageAssets, err)
	}
	for _, textureName := range cfg.TextureNames {
		data, err := am.LoadTexture(textureName, loaders.DefaultTextureOptions())
		if err != nil {
			return metadata.MaterialHandle{}, core.NewError(core.KindInitializationFailure, core.StageAssets, err)
		}
		th, err := registry.UploadTexture(data.Pixels, data.Description)
		if err != nil {
			return metadata.MaterialHandle{}, err
		}
		cfg.Descriptor.Textures = append(cfg.Descriptor.Textures, th)
	}
	mh, err := registry.CreateMaterial(cfg.Descriptor)
	if err != nil {
		return metadata.MaterialHandle{}, err
	}
	am.trackMaterial(name, mh)
	return mh, nil
}

/**
 * @brief Re-reads a material created through CreateMaterial and rewrites its
 * parameter block. Texture and pipeline changes need a restart and are only
 * reported. No frame may be in flight.
 */
func (am *AssetManager) ReloadMaterial(registry *systems.ResourceSystem, name string) error {
	am.materialMu.Lock()
	mh, ok := am.materials[name]
	am.materialMu.Unlock()
	if !ok {
		return fmt.Errorf("material '%s' was not created from a descriptor", name)
	}
	cfg, err := am.LoadMaterial(name)
	if err != nil {
		return err
	}
	current, err := registry.Material(mh)
	if err != nil {
		return err
	}
	if current.Kind != cfg.Descriptor.Pipeline || current.Alpha != cfg.Descriptor.Alpha || len(current.Textures) != len(cfg.TextureNames) {
		core.LogWarn("material '%s': pipeline, alpha or texture changes are applied on restart", name)
	}
	if err := registry.UpdateMaterialParams(mh, cfg.Descriptor.Params); err != nil {
		return err
	}
	core.LogInfo("material '%s' reloaded", name)
	return nil
}

func (am *AssetManager) trackMaterial(name string, mh metadata.MaterialHandle) {
	am.materialMu.Lock()
	am.materials[name] = mh
	am.materialMu.Unlock()
}
