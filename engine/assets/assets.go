package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-render/engine/assets/loaders"
	"github.com/spaghettifunk/anima-render/engine/core"
	"github.com/spaghettifunk/anima-render/engine/renderer/metadata"
)

type AssetKind uint8

const (
	AssetKindNone AssetKind = iota
	AssetKindShader
	AssetKindTexture
	AssetKindMaterial
	AssetKindMesh
	AssetKindFont
)

func (k AssetKind) String() string {
	switch k {
	case AssetKindShader:
		return "shader"
	case AssetKindTexture:
		return "texture"
	case AssetKindMaterial:
		return "material"
	case AssetKindMesh:
		return "mesh"
	case AssetKindFont:
		return "font"
	}
	return "none"
}

// ParseAssetKind is the inverse of AssetKind.String.
func ParseAssetKind(s string) AssetKind {
	for k := AssetKindShader; k <= AssetKindFont; k++ {
		if k.String() == s {
			return k
		}
	}
	return AssetKindNone
}

type AssetInfo struct {
	Path string
	/** @brief The name the asset is loaded by, e.g. "standard.vert" or "crate". */
	Name     string
	Kind     AssetKind
	Modified time.Time
}

var ErrAssetManagerClosed = errors.New("asset manager already closed")

/**
 * @brief Indexes the asset directory, loads assets by name and, when
 * watching, reports file changes as EVENT_CODE_ASSET_CHANGED.
 *
 * Layout under the root: shaders/<name>.spv (or the configured shader
 * directory), textures/, materials/<name>.toml, meshes/<name>.obj and
 * fonts/<name>.fnt.
 */
type AssetManager struct {
	root      string
	shaderDir string
	events    *core.EventBus

	assets map[string]AssetInfo
	mutex  sync.RWMutex

	materials  map[string]metadata.MaterialHandle
	materialMu sync.Mutex

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

var _ metadata.ShaderSource = (*AssetManager)(nil)

/**
 * @brief Creates an asset manager rooted at root.
 * @param root The asset directory.
 * @param shaderDir The directory holding .spv files. Empty means <root>/shaders.
 * @param events Receives change notifications. May be nil.
 */
func NewAssetManager(root, shaderDir string, events *core.EventBus) *AssetManager {
	if shaderDir == "" {
		shaderDir = filepath.Join(root, "shaders")
	}
	return &AssetManager{
		root:      filepath.Clean(root),
		shaderDir: filepath.Clean(shaderDir),
		events:    events,
		assets:    make(map[string]AssetInfo),
		materials: make(map[string]metadata.MaterialHandle),
		done:      make(chan struct{}),
	}
}

/**
 * @brief Indexes every known asset below the root and the shader directory.
 * @param watch Starts an fsnotify watcher feeding the event bus.
 */
func (am *AssetManager) Initialize(watch bool) error {
	dirs := []string{am.root}
	if !isWithin(am.root, am.shaderDir) {
		dirs = append(dirs, am.shaderDir)
	}
	for _, dir := range dirs {
		if err := am.index(dir); err != nil {
			return core.NewError(core.KindInitializationFailure, core.StageAssets, err)
		}
	}
	core.LogInfo("asset index built: %d assets under '%s'", am.Len(), am.root)

	if !watch {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return core.NewError(core.KindInitializationFailure, core.StageAssets, err)
	}
	am.fsnotify = w
	for _, dir := range dirs {
		if err := am.watchRecursive(dir); err != nil {
			w.Close()
			am.fsnotify = nil
			return core.NewError(core.KindInitializationFailure, core.StageAssets, err)
		}
	}
	am.wg.Add(1)
	go am.start()
	core.LogInfo("watching '%s' for changes", am.root)
	return nil
}

func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	if am.fsnotify != nil {
		close(am.done)
		am.wg.Wait()
		return am.fsnotify.Close()
	}
	return nil
}

func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Lookup returns the indexed asset of a kind by name.
func (am *AssetManager) Lookup(kind AssetKind, name string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	for _, a := range am.assets {
		if a.Kind == kind && a.Name == name {
			return a, true
		}
	}
	return AssetInfo{}, false
}

// List returns the indexed assets of a kind sorted by name.
func (am *AssetManager) List(kind AssetKind) []AssetInfo {
	am.mutex.RLock()
	out := make([]AssetInfo, 0)
	for _, a := range am.assets {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	am.mutex.RUnlock()
	slices.SortFunc(out, func(a, b AssetInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// LoadShader reads <shader_dir>/<name>.spv.
func (am *AssetManager) LoadShader(name string) ([]uint32, error) {
	return loaders.LoadSPIRV(filepath.Join(am.shaderDir, name+".spv"))
}

// LoadTexture decodes textures/<name>. Without an extension every supported one is tried.
func (am *AssetManager) LoadTexture(name string, options loaders.TextureOptions) (*metadata.TextureData, error) {
	path, err := am.texturePath(name)
	if err != nil {
		return nil, err
	}
	return loaders.LoadTexture(path, options)
}

func (am *AssetManager) LoadMesh(name string) (*metadata.MeshData, error) {
	return loaders.LoadMesh(filepath.Join(am.root, "meshes", name+".obj"))
}

func (am *AssetManager) LoadMaterial(name string) (*loaders.MaterialConfig, error) {
	return loaders.LoadMaterial(filepath.Join(am.root, "materials", name+".toml"))
}

func (am *AssetManager) LoadBitmapFont(name string) (*loaders.BitmapFontData, error) {
	return loaders.LoadBitmapFont(filepath.Join(am.root, "fonts", name+".fnt"))
}

func (am *AssetManager) texturePath(name string) (string, error) {
	base := filepath.Join(am.root, "textures", name)
	if filepath.Ext(name) != "" {
		return base, nil
	}
	for _, ext := range loaders.TextureExtensions {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext, nil
		}
	}
	return "", fmt.Errorf("texture '%s' not found in %s", name, filepath.Dir(base))
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := am.watchRecursive(e.Name); err != nil {
				core.LogWarn("failed to watch '%s': %s", e.Name, err)
			}
			return
		}
	}
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		am.removeAsset(e.Name)
		return
	}
	if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	info, ok := am.indexFile(e.Name, time.Now())
	if !ok {
		return
	}
	core.LogDebug("%s '%s' changed", info.Kind, info.Name)
	if am.events != nil {
		ctx := core.EventContext{}
		ctx.Data.C[0] = info.Name
		ctx.Data.C[1] = info.Kind.String()
		am.events.Fire(core.EVENT_CODE_ASSET_CHANGED, am, ctx)
	}
}

func (am *AssetManager) index(dir string) error {
	return filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			am.indexFile(path, fi.ModTime())
		}
		return nil
	})
}

// watchRecursive adds dir and every directory below it to the watch list.
func (am *AssetManager) watchRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(path)
		}
		am.indexFile(path, fi.ModTime())
		return nil
	})
}

func (am *AssetManager) indexFile(path string, modified time.Time) (AssetInfo, bool) {
	kind, name := am.classify(path)
	if kind == AssetKindNone {
		return AssetInfo{}, false
	}
	info := AssetInfo{Path: path, Name: name, Kind: kind, Modified: modified}
	am.mutex.Lock()
	am.assets[path] = info
	am.mutex.Unlock()
	return info, true
}

func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, path)
}

// classify returns the kind of the file at path and the name it is loaded by.
func (am *AssetManager) classify(path string) (AssetKind, string) {
	ext := strings.ToLower(filepath.Ext(path))
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parent := filepath.Base(filepath.Dir(path))
	switch {
	case ext == ".spv":
		return AssetKindShader, stem
	case ext == ".obj":
		return AssetKindMesh, stem
	case ext == ".fnt":
		return AssetKindFont, stem
	case ext == ".toml" && parent == "materials":
		return AssetKindMaterial, stem
	case slices.Contains(loaders.TextureExtensions, ext) && isWithin(filepath.Join(am.root, "textures"), path):
		rel, err := filepath.Rel(filepath.Join(am.root, "textures"), path)
		if err != nil {
			return AssetKindNone, ""
		}
		return AssetKindTexture, filepath.ToSlash(rel)
	}
	return AssetKindNone, ""
}

func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
